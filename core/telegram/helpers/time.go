package helpers

import (
	"strings"
	"time"
)

// DisplayTimestamp is how backend timestamps are shown to operators.
const DisplayTimestamp = "02.01.2006 15:04"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts the timestamp shapes the backend emits.
// Values without a zone are read in loc.
func ParseTimestamp(input string, loc *time.Location) (time.Time, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc), true
		}
	}
	return time.Time{}, false
}

// FormatTimestamp renders a backend timestamp in loc, or echoes input when
// it cannot be parsed.
func FormatTimestamp(input string, loc *time.Location) string {
	t, ok := ParseTimestamp(input, loc)
	if !ok {
		return input
	}
	if len(strings.TrimSpace(input)) == len("2006-01-02") {
		return t.Format("02.01.2006")
	}
	return t.Format(DisplayTimestamp)
}
