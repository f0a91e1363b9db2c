package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/m3rciful/surveybot/internal/schedule"
)

// Structured business error codes carried in the "code" field of error bodies.
const (
	CodeMailingConflict  = "mailing_conflict"
	CodeMailingCompleted = "mailing_completed"
	CodeAlreadyExists    = "already_exists"
)

var (
	// ErrMailingCompleted is returned when cancelling a mailing that already ran.
	ErrMailingCompleted = errors.New("backend: mailing already completed")
	// ErrAccountExists is returned when the test account is already registered.
	ErrAccountExists = errors.New("backend: account already exists")
	// ErrUndecodable is returned when a response body is not the expected JSON.
	ErrUndecodable = errors.New("backend: undecodable response")
)

// APIError is a non-2xx answer without a recognised business meaning.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: status %d", e.Status)
	}
	return fmt.Sprintf("backend: status %d: %s", e.Status, e.Message)
}

// DateRange is an inclusive span of calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// IsZero reports whether the range is unset.
func (r DateRange) IsZero() bool { return r.Start.IsZero() && r.End.IsZero() }

// String renders the range as "dd.mm.yyyy – dd.mm.yyyy".
func (r DateRange) String() string {
	if r.IsZero() {
		return "unknown"
	}
	return schedule.FormatDisplay(r.Start) + " – " + schedule.FormatDisplay(r.End)
}

// ConflictError reports that a requested mailing overlaps an existing one.
type ConflictError struct {
	Requested DateRange
	Existing  DateRange
	Message   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("backend: mailing %s overlaps existing %s", e.Requested, e.Existing)
}

// errorBody is the union of the error shapes the backend produces.
type errorBody struct {
	Code     string     `json:"code"`
	Error    string     `json:"error"`
	Message  string     `json:"message"`
	Detail   string     `json:"detail"`
	Existing *rangeBody `json:"existing"`
}

type rangeBody struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func (b errorBody) text() string {
	for _, s := range []string{b.Error, b.Message, b.Detail} {
		if strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func parseErrorBody(status int, body []byte) errorBody {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		eb.Error = strings.TrimSpace(string(body))
		if len(eb.Error) > 512 {
			eb.Error = eb.Error[:512]
		}
	}
	if eb.text() == "" {
		eb.Error = http.StatusText(status)
	}
	return eb
}

// Substring markers used only when the backend omits the structured code.
var (
	conflictMarkers  = []string{"пересека", "overlap", "conflict", "already scheduled"}
	completedMarkers = []string{"заверш", "completed", "already sent"}
	existsMarkers    = []string{"already exists", "уже существует"}
)

func matchCode(eb errorBody, code string, markers []string) bool {
	if eb.Code != "" {
		return eb.Code == code
	}
	text := strings.ToLower(eb.text())
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

var isoDate = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// existingRange takes the structured range when present, otherwise the last
// two ISO dates mentioned in the message.
func existingRange(eb errorBody) DateRange {
	if eb.Existing != nil {
		s, errS := schedule.ParseISO(eb.Existing.StartDate, time.UTC)
		e, errE := schedule.ParseISO(eb.Existing.EndDate, time.UTC)
		if errS == nil && errE == nil {
			return DateRange{Start: s, End: e}
		}
	}
	found := isoDate.FindAllString(eb.text(), -1)
	if len(found) < 2 {
		return DateRange{}
	}
	s, errS := schedule.ParseISO(found[len(found)-2], time.UTC)
	e, errE := schedule.ParseISO(found[len(found)-1], time.UTC)
	if errS != nil || errE != nil {
		return DateRange{}
	}
	return DateRange{Start: s, End: e}
}
