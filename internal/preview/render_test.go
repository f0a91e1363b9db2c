package preview

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func engineers(n int) Table {
	t := Table{Header: []string{ColEmail, ColFullName}}
	for i := 0; i < n; i++ {
		t.Rows = append(t.Rows, []string{fmt.Sprintf("user%02d@example.com", i), fmt.Sprintf("Ivanov User%02d", i)})
	}
	return t
}

// dataRows counts table body lines between the header separator and the bottom border.
func dataRows(text string) int {
	body := text[strings.Index(text, "├"):strings.Index(text, "└")]
	return strings.Count(body, "\n") - 1
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 3, TotalPages(25, 10))
	assert.Equal(t, 1, TotalPages(10, 10))
	assert.Equal(t, 2, TotalPages(11, 10))
	assert.Equal(t, 0, TotalPages(0, 10))
}

func TestRenderLastPartialPage(t *testing.T) {
	p := RenderPage(KindEngineers, engineers(25), 2, 10)
	assert.Equal(t, 2, p.Index)
	assert.Equal(t, 3, p.Total)
	assert.Equal(t, 5, dataRows(p.Text))
	assert.Contains(t, p.Text, "Page 3 of 3")
	assert.Contains(t, p.Text, "user24@example.com")
	assert.NotContains(t, p.Text, "user19@example.com")
	assert.True(t, p.HasPrev())
	assert.False(t, p.HasNext())
}

func TestRenderIsPure(t *testing.T) {
	tbl := engineers(25)
	a := RenderPage(KindEngineers, tbl, 1, 10)
	b := RenderPage(KindEngineers, tbl, 1, 10)
	assert.Equal(t, a, b)
	assert.Equal(t, 10, dataRows(a.Text))
}

func TestRenderClampsOutOfRangePage(t *testing.T) {
	p := RenderPage(KindEngineers, engineers(25), 7, 10)
	assert.Equal(t, 2, p.Index)
	p = RenderPage(KindEngineers, engineers(25), -3, 10)
	assert.Equal(t, 0, p.Index)
	assert.False(t, p.HasPrev())
	assert.True(t, p.HasNext())
}

func TestRenderEmpty(t *testing.T) {
	p := RenderPage(KindEngineers, engineers(0), 0, 10)
	assert.Equal(t, 0, p.Total)
	assert.Equal(t, 0, dataRows(p.Text))
	assert.False(t, p.HasNext())
	assert.False(t, p.HasPrev())
}

func TestCasesAggregatedByAssignee(t *testing.T) {
	tbl := Table{Header: []string{"Код", ColAssignee}}
	for i, who := range []string{"Petrov", "Sidorov", "Petrov", "Abramov", "Sidorov", "Petrov", ""} {
		tbl.Rows = append(tbl.Rows, []string{fmt.Sprint(i), who})
	}
	p := RenderPage(KindCases, tbl, 0, 10)
	require.Equal(t, 1, p.Total)
	assert.Equal(t, 3, dataRows(p.Text))

	petrov := strings.Index(p.Text, "Petrov")
	sidorov := strings.Index(p.Text, "Sidorov")
	abramov := strings.Index(p.Text, "Abramov")
	assert.True(t, petrov < sidorov && sidorov < abramov)
	assert.Contains(t, p.Text, "│ 3 ")
}

func TestCasesTieBrokenByName(t *testing.T) {
	tbl := Table{Header: []string{ColAssignee}, Rows: [][]string{{"Zhukov"}, {"Belov"}}}
	p := RenderPage(KindCases, tbl, 0, 10)
	assert.Less(t, strings.Index(p.Text, "Belov"), strings.Index(p.Text, "Zhukov"))
}

func TestActivitiesTruncated(t *testing.T) {
	tbl := Table{
		Header: []string{"Код активности", ColActivityName, ColManager},
		Rows: [][]string{
			{"A1", "Очень длинное название активности", "Менеджер Сервисный Длинный"},
			{"A2", "Коротко", "Иванов"},
		},
	}
	p := RenderPage(KindActivities, tbl, 0, 10)
	assert.Contains(t, p.Text, "Очень длинное назван...")
	assert.Contains(t, p.Text, "Менеджер Сервисный Д ")
	assert.Contains(t, p.Text, "Коротко ")
	assert.NotContains(t, p.Text, "Коротко...")
}

func TestEngineerCellsEscapedAndTruncated(t *testing.T) {
	tbl := Table{
		Header: []string{ColFullName, ColEmail},
		Rows:   [][]string{{"<b>Name</b>", "a-very-long-address-indeed@example.com"}},
	}
	p := RenderPage(KindEngineers, tbl, 0, 10)
	assert.Contains(t, p.Text, "&lt;b&gt;Name&lt;/b&gt;")
	assert.Contains(t, p.Text, "a-very-long-address-ind │")
	assert.NotContains(t, p.Text, "a-very-long-address-inde")
}

func TestRowsStayInsideBox(t *testing.T) {
	long := strings.Repeat("я", 25)
	tables := map[Kind]Table{
		KindEngineers:  {Header: []string{ColEmail, ColFullName}, Rows: [][]string{{long, long}, {"x", "y"}}},
		KindCases:      {Header: []string{ColAssignee}, Rows: [][]string{{long}, {"Petrov"}}},
		KindActivities: {Header: []string{ColActivityName, ColManager}, Rows: [][]string{{long, long}}},
	}
	for kind, tbl := range tables {
		t.Run(string(kind), func(t *testing.T) {
			text := RenderPage(kind, tbl, 0, 10).Text
			body := text[strings.Index(text, "┌"):strings.Index(text, "└")]
			lines := strings.Split(strings.TrimSuffix(body, "\n"), "\n")
			want := utf8.RuneCountInString(lines[0])
			for _, l := range lines[1:] {
				assert.Equal(t, want, utf8.RuneCountInString(l), l)
			}
		})
	}
}

func TestClampPage(t *testing.T) {
	assert.Equal(t, 0, ClampPage(-1, 3))
	assert.Equal(t, 2, ClampPage(5, 3))
	assert.Equal(t, 1, ClampPage(1, 3))
	assert.Equal(t, 0, ClampPage(4, 0))
}
