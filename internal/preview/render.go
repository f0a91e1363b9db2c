package preview

import (
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Kind selects the columns a preview shows.
type Kind string

const (
	KindEngineers  Kind = "engineers"
	KindCases      Kind = "cases"
	KindActivities Kind = "activities"
)

// DefaultPageSize is the number of rows shown per page.
const DefaultPageSize = 10

// Source column names, as they appear in the uploaded spreadsheets.
const (
	ColEmail        = "Почта"
	ColFullName     = "ФИ"
	ColAssignee     = "Исполнитель"
	ColActivityName = "Название активности"
	ColManager      = "Сервис-менеджер"
)

const (
	leftWidth  = 23
	rightWidth = 20
	boxWidth   = 48
)

// Page is one rendered preview page.
type Page struct {
	Text  string
	Index int
	Total int
}

// HasPrev reports whether a previous page exists.
func (p Page) HasPrev() bool { return p.Index > 0 }

// HasNext reports whether a following page exists.
func (p Page) HasNext() bool { return p.Index < p.Total-1 }

// TotalPages is ceil(rows/pageSize). An empty dataset has no pages.
func TotalPages(rows, pageSize int) int {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if rows <= 0 {
		return 0
	}
	return (rows + pageSize - 1) / pageSize
}

// ClampPage keeps page within [0, total-1].
func ClampPage(page, total int) int {
	if page >= total {
		page = total - 1
	}
	if page < 0 {
		page = 0
	}
	return page
}

type line struct{ left, right string }

type layout struct {
	title       string
	left, right string
	lines       func(Table) []line
}

var layouts = map[Kind]layout{
	KindEngineers: {
		title: "Engineers preview",
		left:  "Почта",
		right: "ФИ",
		lines: engineerLines,
	},
	KindCases: {
		title: "Cases preview",
		left:  "Исполнитель",
		right: "Кол-во кейсов",
		lines: caseLines,
	},
	KindActivities: {
		title: "Activities preview",
		left:  "Название активности",
		right: "Сервис-менеджер",
		lines: activityLines,
	},
}

// RenderPage renders page of t for kind. The page index is clamped into range.
// Identical inputs always yield identical output.
func RenderPage(kind Kind, t Table, page, pageSize int) Page {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	lay, ok := layouts[kind]
	if !ok {
		lay = layouts[KindEngineers]
	}
	all := lay.lines(t)
	total := TotalPages(len(all), pageSize)
	page = ClampPage(page, total)

	from := page * pageSize
	to := min(from+pageSize, len(all))
	if from > to {
		from = to
	}

	var b strings.Builder
	b.WriteString("<b>" + lay.title + "</b>\n")
	b.WriteString("<i>Use the buttons to page through the records</i>\n")
	b.WriteString("<pre>┌" + strings.Repeat("─", boxWidth) + "┐\n")
	writeRow(&b, lay.left, lay.right)
	b.WriteString("├" + strings.Repeat("─", boxWidth) + "┤\n")
	for _, l := range all[from:to] {
		writeRow(&b, l.left, l.right)
	}
	b.WriteString("└" + strings.Repeat("─", boxWidth) + "┘\n")
	if total == 0 {
		b.WriteString("<i>No rows to preview</i></pre>")
	} else {
		fmt.Fprintf(&b, "<i>Page %d of %d</i></pre>", page+1, total)
	}
	return Page{Text: b.String(), Index: page, Total: total}
}

func writeRow(b *strings.Builder, left, right string) {
	fmt.Fprintf(b, "│ %s │ %s │\n", pad(left, leftWidth), pad(right, rightWidth))
}

// pad escapes s for HTML and right-pads it to width runes.
func pad(s string, width int) string {
	n := utf8.RuneCountInString(s)
	out := html.EscapeString(s)
	if n < width {
		out += strings.Repeat(" ", width-n)
	}
	return out
}

func truncate(s string, limit int) (string, bool) {
	if utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	r := []rune(s)
	return string(r[:limit]), true
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

func engineerLines(t Table) []line {
	email, name := t.Column(ColEmail), t.Column(ColFullName)
	out := make([]line, 0, len(t.Rows))
	for _, row := range t.Rows {
		e, _ := truncate(orDash(t.Value(row, email)), leftWidth)
		n, _ := truncate(orDash(t.Value(row, name)), rightWidth)
		out = append(out, line{e, n})
	}
	return out
}

func activityLines(t Table) []line {
	title, manager := t.Column(ColActivityName), t.Column(ColManager)
	out := make([]line, 0, len(t.Rows))
	for _, row := range t.Rows {
		a, cut := truncate(orDash(t.Value(row, title)), leftWidth-3)
		if cut {
			a += "..."
		}
		m, _ := truncate(orDash(t.Value(row, manager)), rightWidth)
		out = append(out, line{a, m})
	}
	return out
}

// caseLines counts cases per assignee, most loaded first, ties by name.
func caseLines(t Table) []line {
	col := t.Column(ColAssignee)
	counts := make(map[string]int)
	for _, row := range t.Rows {
		name := t.Value(row, col)
		if name == "" {
			continue
		}
		counts[name]++
	}
	names := make([]string, 0, len(counts))
	for n := range counts {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	out := make([]line, 0, len(names))
	for _, n := range names {
		short, _ := truncate(n, leftWidth)
		out = append(out, line{short, strconv.Itoa(counts[n])})
	}
	return out
}
