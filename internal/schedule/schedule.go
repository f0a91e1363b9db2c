// Package schedule computes survey mailing dates: candidate start and end days
// offered to the operator and the three reminder dates sent in between.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/rickar/cal/v2"
)

const (
	// DisplayLayout is the dd.mm.yyyy form shown to operators.
	DisplayLayout = "02.01.2006"
	// ISOLayout is the calendar-date form exchanged with the backend.
	ISOLayout = "2006-01-02"

	// DefaultCandidates is how many dates a picker offers.
	DefaultCandidates = 5
	// DefaultEndOffsetDays is the distance between a chosen start and the first end candidate.
	DefaultEndOffsetDays = 10
	// DefaultCutoffHour moves the first start candidate to tomorrow once passed.
	DefaultCutoffHour = 10
)

// ErrInvalidRange is returned when the end date does not follow the start date.
var ErrInvalidRange = errors.New("schedule: end date must be after start date")

// NextWeekday moves a Saturday or Sunday back to the preceding Friday and
// returns any other day unchanged. The roll is backward despite the name.
func NextWeekday(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, -2)
	}
	return d
}

// Validate rejects ranges where start is not strictly before end.
func Validate(start, end time.Time) error {
	if !Day(start).Before(Day(end)) {
		return fmt.Errorf("%w: %s..%s", ErrInvalidRange, FormatISO(start), FormatISO(end))
	}
	return nil
}

// IntermediateDates returns the reminder dates for a mailing: the start date,
// the midpoint of the range and the day before the end, the last two moved off
// weekends. Callers run Validate first.
func IntermediateDates(start, end time.Time) [3]time.Time {
	start, end = Day(start), Day(end)
	half := daysBetween(start, end) / 2
	return [3]time.Time{
		start,
		NextWeekday(start.AddDate(0, 0, half)),
		NextWeekday(end.AddDate(0, 0, -1)),
	}
}

// StartCandidates lists n weekdays beginning today, or tomorrow once now has
// reached cutoffHour.
func StartCandidates(now time.Time, cutoffHour, n int) []time.Time {
	from := Day(now)
	if now.Hour() >= cutoffHour {
		from = from.AddDate(0, 0, 1)
	}
	return weekdaysFrom(from, n)
}

// EndCandidates lists n weekdays beginning offsetDays after start.
func EndCandidates(start time.Time, offsetDays, n int) []time.Time {
	return weekdaysFrom(Day(start).AddDate(0, 0, offsetDays), n)
}

func weekdaysFrom(d time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	for len(out) < n {
		if !cal.IsWeekend(d) {
			out = append(out, d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return out
}

// Day truncates t to midnight in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func daysBetween(a, b time.Time) int {
	// Calendar arithmetic in UTC keeps DST transitions from skewing the count.
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// FormatDisplay renders d as dd.mm.yyyy.
func FormatDisplay(d time.Time) string { return d.Format(DisplayLayout) }

// FormatISO renders d as yyyy-mm-dd.
func FormatISO(d time.Time) string { return d.Format(ISOLayout) }

// ParseISO parses a yyyy-mm-dd date in loc.
func ParseISO(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(ISOLayout, s, loc)
}

// WeekdayName returns the English weekday name shown next to dates.
func WeekdayName(d time.Time) string { return d.Weekday().String() }

// Label renders a picker caption such as "06.01.2025 (Monday)".
func Label(d time.Time) string {
	return fmt.Sprintf("%s (%s)", FormatDisplay(d), WeekdayName(d))
}
