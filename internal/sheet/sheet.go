// Package sheet reads uploaded .xlsx workbooks into preview tables.
package sheet

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/m3rciful/surveybot/internal/preview"
)

// Extension is the only accepted upload format.
const Extension = ".xlsx"

// ErrUnreadable wraps every failure to turn an upload into rows.
var ErrUnreadable = errors.New("sheet: unreadable workbook")

// HasExtension reports whether name ends in .xlsx, case-insensitively.
func HasExtension(name string) bool {
	return strings.EqualFold(filepath.Ext(strings.TrimSpace(name)), Extension)
}

// Parse reads the first sheet of an .xlsx workbook. The first row is the header;
// blank rows are dropped and short rows are padded to the header width.
func Parse(data []byte) (preview.Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return preview.Table{}, fmt.Errorf("%w: open: %v", ErrUnreadable, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return preview.Table{}, fmt.Errorf("%w: no sheets", ErrUnreadable)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return preview.Table{}, fmt.Errorf("%w: rows: %v", ErrUnreadable, err)
	}
	if len(rows) == 0 {
		return preview.Table{}, fmt.Errorf("%w: empty sheet", ErrUnreadable)
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}
	t := preview.Table{Header: header}
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		if len(row) < len(header) {
			row = append(row, make([]string, len(header)-len(row))...)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Missing returns every required column absent from the header, in order.
func Missing(t preview.Table, required []string) []string {
	var out []string
	for _, col := range required {
		if t.Column(col) < 0 {
			out = append(out, col)
		}
	}
	return out
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
