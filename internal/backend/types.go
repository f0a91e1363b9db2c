package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Category is an upload target on the backend.
type Category string

const (
	CategoryEngineers  Category = "engineers"
	CategoryCases      Category = "cases"
	CategoryActivities Category = "activities"
	// CategoryExport downloads the consolidated workbook instead of uploading.
	CategoryExport Category = "export"
)

// Categories lists every category in menu order.
var Categories = []Category{CategoryEngineers, CategoryCases, CategoryActivities, CategoryExport}

var categoryColumns = map[Category][]string{
	CategoryEngineers:  {"Почта", "ФИ"},
	CategoryCases:      {"Код", "Создано", "Дата решения", "Приоритет", "Статус", "Тема", "Описание", "Автор", "Исполнитель", "Активность", "Вендор", "Рабочая группа", "Описание решения", "Код решения", "Организация"},
	CategoryActivities: {"Код активности", "Название активности", "Сервис-менеджер"},
}

// ParseCategory resolves a category name.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Columns returns the header cells an upload of c must carry.
func (c Category) Columns() []string {
	return append([]string(nil), categoryColumns[c]...)
}

// Title is the operator-facing name of the category.
func (c Category) Title() string {
	switch c {
	case CategoryEngineers:
		return "Engineers"
	case CategoryCases:
		return "Cases"
	case CategoryActivities:
		return "Activities"
	case CategoryExport:
		return "Final export"
	}
	return string(c)
}

func (c Category) defaultPath() string {
	switch c {
	case CategoryEngineers:
		return "/users/"
	case CategoryCases:
		return "/cases/"
	case CategoryActivities:
		return "/activities/"
	case CategoryExport:
		return "/activities/export/"
	}
	return "/"
}

// MailingSettings is the payload that schedules a survey mailing.
// Dates use the yyyy-mm-dd form.
type MailingSettings struct {
	ChatID            int64    `json:"chat_id"`
	StartDate         string   `json:"start_date"`
	EndDate           string   `json:"end_date"`
	IntermediateDates []string `json:"intermediate_dates"`
}

// Mailing is a scheduled survey as reported by the backend.
type Mailing struct {
	ID                int64    `json:"id"`
	ChatID            int64    `json:"chat_id,omitempty"`
	StartDate         string   `json:"start_date"`
	EndDate           string   `json:"end_date"`
	IntermediateDates []string `json:"intermediate_dates,omitempty"`
	Status            string   `json:"status,omitempty"`
	CreatedAt         string   `json:"created_at,omitempty"`
}

// TaskLogEntry is one run of a mailing's delivery task.
type TaskLogEntry struct {
	ID        int64  `json:"id"`
	Date      string `json:"date"`
	Status    string `json:"status"`
	Sent      int    `json:"sent"`
	Failed    int    `json:"failed"`
	Message   string `json:"message,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// EngineerStat is the feedback progress of one surveyed engineer.
type EngineerStat struct {
	Engineer      string `json:"engineer"`
	FeedbackStats string `json:"feedback_stats"`
}

// Stats summarises feedback collection across engineers.
type Stats struct {
	Engineers      []EngineerStat `json:"engineers"`
	TotalFeedbacks struct {
		Sent   int `json:"total_sent"`
		Unsent int `json:"total_unsent"`
	} `json:"total_feedbacks"`
}

// TestAccount is the payload creating a survey test account.
type TestAccount struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// NewUser is an account created as a side effect of an upload.
type NewUser struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// RowError is a per-row validation failure in a partial upload.
type RowError struct {
	Row    int   `json:"row"`
	Errors Items `json:"errors"`
}

// FieldError lists validation messages for one field of a rejected upload.
type FieldError struct {
	Field    string
	Messages Items
}

// UploadResult is the decoded answer to an upload.
type UploadResult struct {
	Status                 int          `json:"-"`
	Message                string       `json:"message"`
	Error                  string       `json:"error"`
	NewUsers               []NewUser    `json:"new_users"`
	MissingUsers           Items        `json:"missing_users"`
	SerializationErrors    []RowError   `json:"serialization_errors"`
	ActivitiesWithoutCases Items        `json:"activities_without_cases"`
	FieldErrors            []FieldError `json:"-"`
}

// Items is a list of display strings. Non-string JSON elements are kept in
// compact JSON form so nothing the backend reports is dropped.
type Items []string

// UnmarshalJSON accepts a list of arbitrary values or a single value.
func (it *Items) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*it = nil
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		raw = []json.RawMessage{data}
	}
	out := make(Items, 0, len(raw))
	for _, r := range raw {
		out = append(out, displayJSON(r))
	}
	*it = out
	return nil
}

// String joins the items with "; ".
func (it Items) String() string { return strings.Join(it, "; ") }

func displayJSON(r json.RawMessage) string {
	var s string
	if err := json.Unmarshal(r, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, r); err != nil {
		return string(r)
	}
	return buf.String()
}

func (f FieldError) String() string {
	return fmt.Sprintf("%s: %s", f.Field, f.Messages)
}
