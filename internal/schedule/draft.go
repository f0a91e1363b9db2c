package schedule

import "time"

// Draft is a mailing under construction: the chosen range and its reminders.
type Draft struct {
	Start     time.Time
	End       time.Time
	Reminders [3]time.Time
}

// NewDraft validates the range and derives the reminder dates.
func NewDraft(start, end time.Time) (Draft, error) {
	if err := Validate(start, end); err != nil {
		return Draft{}, err
	}
	return Draft{
		Start:     Day(start),
		End:       Day(end),
		Reminders: IntermediateDates(start, end),
	}, nil
}

// Days is the inclusive length of the survey in calendar days.
func (d Draft) Days() int {
	return daysBetween(d.Start, d.End) + 1
}

// ReminderISO returns the reminder dates in backend form.
func (d Draft) ReminderISO() []string {
	out := make([]string, len(d.Reminders))
	for i, r := range d.Reminders {
		out[i] = FormatISO(r)
	}
	return out
}
