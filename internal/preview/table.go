// Package preview renders uploaded spreadsheet rows as paginated HTML tables.
package preview

import "strings"

// Table is a parsed spreadsheet: the header row plus data rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// Column returns the index of the named header cell, or -1.
func (t Table) Column(name string) int {
	for i, h := range t.Header {
		if strings.TrimSpace(h) == name {
			return i
		}
	}
	return -1
}

// Value returns the cell of row at col, or "" when out of range.
func (t Table) Value(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// Len returns the number of data rows.
func (t Table) Len() int { return len(t.Rows) }
