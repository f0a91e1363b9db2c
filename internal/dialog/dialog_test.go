package dialog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/m3rciful/surveybot/core/telegram/state"
	"github.com/m3rciful/surveybot/internal/backend"
)

type fakeBackend struct {
	created   []backend.MailingSettings
	createErr error

	mailings  []backend.Mailing
	listErr   error
	cancelled []int64
	cancelErr error

	accounts   []backend.TestAccount
	accountErr error

	uploads   []string
	uploadRes *backend.UploadResult
	uploadErr error

	export []byte
}

func (f *fakeBackend) CreateMailing(_ context.Context, s backend.MailingSettings) error {
	f.created = append(f.created, s)
	return f.createErr
}

func (f *fakeBackend) Mailings(context.Context) ([]backend.Mailing, error) {
	return f.mailings, f.listErr
}

func (f *fakeBackend) CancelMailing(_ context.Context, id int64) error {
	f.cancelled = append(f.cancelled, id)
	return f.cancelErr
}

func (f *fakeBackend) CreateTestAccount(_ context.Context, acc backend.TestAccount) error {
	f.accounts = append(f.accounts, acc)
	return f.accountErr
}

func (f *fakeBackend) Upload(_ context.Context, cat backend.Category, name string, _ []byte) (*backend.UploadResult, error) {
	f.uploads = append(f.uploads, string(cat)+":"+name)
	return f.uploadRes, f.uploadErr
}

func (f *fakeBackend) Export(context.Context) ([]byte, error) {
	return f.export, nil
}

const chat = int64(100)

// Monday morning, before the cutoff.
var monday = time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)

func newEngine(api *fakeBackend) (*Engine, state.Manager) {
	sessions := state.NewMemoryManager()
	e := New(sessions, api, Options{
		Location: time.UTC,
		Now:      func() time.Time { return monday },
	})
	return e, sessions
}

func click(action, payload string) Event {
	return Event{Kind: KindCallback, Action: action, Payload: payload}
}

func text(s string) Event { return Event{Kind: KindText, Text: s} }

func doc(name string, data []byte) Event {
	return Event{Kind: KindDocument, Document: &Document{
		Name:  name,
		Size:  int64(len(data)),
		Fetch: func(context.Context) ([]byte, error) { return data, nil },
	}}
}

func last(t *testing.T, replies []Reply) Reply {
	t.Helper()
	require.NotEmpty(t, replies)
	return replies[len(replies)-1]
}

func payloads(r Reply) []string {
	var out []string
	for _, row := range r.Buttons {
		for _, b := range row {
			out = append(out, b.Payload)
		}
	}
	return out
}

func actions(r Reply) []string {
	var out []string
	for _, row := range r.Buttons {
		for _, b := range row {
			out = append(out, b.Action)
		}
	}
	return out
}

func pickDates(t *testing.T, e *Engine, start, end string) []Reply {
	t.Helper()
	ctx := context.Background()
	e.BeginMailing(ctx, chat)
	e.Handle(ctx, chat, click(ActionStartDate, start))
	return e.Handle(ctx, chat, click(ActionEndDate, end))
}

func TestMailingHappyPath(t *testing.T) {
	api := &fakeBackend{}
	e, sessions := newEngine(api)
	ctx := context.Background()

	first := last(t, e.BeginMailing(ctx, chat))
	assert.Equal(t, []string{"2025-01-06", "2025-01-07", "2025-01-08", "2025-01-09", "2025-01-10"}, payloads(first))
	assert.Equal(t, StateAwaitingStart, sessions.GetState(chat))

	endPrompt := last(t, e.Handle(ctx, chat, click(ActionStartDate, "2025-01-06")))
	assert.Equal(t, StateAwaitingEnd, sessions.GetState(chat))
	assert.Equal(t, []string{"2025-01-16", "2025-01-17", "2025-01-20", "2025-01-21", "2025-01-22"}, payloads(endPrompt))

	summary := last(t, e.Handle(ctx, chat, click(ActionEndDate, "2025-01-17")))
	assert.Equal(t, StateAwaitingConfirmation, sessions.GetState(chat))
	assert.True(t, summary.HTML)
	assert.Contains(t, summary.Text, "<b>Days in survey:</b> 12")
	assert.Contains(t, summary.Text, "10.01.2025 (Friday)")
	assert.Contains(t, summary.Text, "16.01.2025 (Thursday)")
	assert.Equal(t, []string{ActionConfirm, ActionReject}, actions(summary))

	done := last(t, e.Handle(ctx, chat, click(ActionConfirm, "")))
	assert.Contains(t, done.Text, "saved")
	assert.Equal(t, state.StateIdle, sessions.GetState(chat))

	require.Len(t, api.created, 1)
	assert.Equal(t, backend.MailingSettings{
		ChatID:            chat,
		StartDate:         "2025-01-06",
		EndDate:           "2025-01-17",
		IntermediateDates: []string{"2025-01-06", "2025-01-10", "2025-01-16"},
	}, api.created[0])
}

func TestMailingRejectsEndBeforeStart(t *testing.T) {
	e, sessions := newEngine(&fakeBackend{})

	r := last(t, pickDates(t, e, "2025-01-10", "2025-01-08"))
	assert.Contains(t, r.Text, "must be after")
	assert.Equal(t, StateAwaitingEnd, sessions.GetState(chat))

	r = last(t, e.Handle(context.Background(), chat, click(ActionEndDate, "2025-01-10")))
	assert.Contains(t, r.Text, "must be after")
	assert.Equal(t, StateAwaitingEnd, sessions.GetState(chat))
}

func TestMailingIgnoresTextWhileChoosingDates(t *testing.T) {
	e, sessions := newEngine(&fakeBackend{})
	ctx := context.Background()
	e.BeginMailing(ctx, chat)

	r := last(t, e.Handle(ctx, chat, text("2025-01-06")))
	assert.Len(t, r.Buttons, 5)
	assert.Equal(t, StateAwaitingStart, sessions.GetState(chat))

	r = last(t, e.Handle(ctx, chat, click(ActionConfirm, "")))
	assert.Equal(t, msgStale, r.Text)
	assert.Equal(t, StateAwaitingStart, sessions.GetState(chat))
}

func TestMailingRejectRestarts(t *testing.T) {
	api := &fakeBackend{}
	e, sessions := newEngine(api)
	pickDates(t, e, "2025-01-06", "2025-01-17")

	replies := e.Handle(context.Background(), chat, click(ActionReject, ""))
	require.Len(t, replies, 2)
	assert.Contains(t, replies[0].Text, "discarded")
	assert.Len(t, replies[1].Buttons, 5)
	assert.Equal(t, StateAwaitingStart, sessions.GetState(chat))
	_, ok := sessions.GetTemp(chat, keyDraft)
	assert.False(t, ok)
	assert.Empty(t, api.created)
}

func conflict() error {
	return &backend.ConflictError{
		Requested: backend.DateRange{Start: time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC)},
		Existing:  backend.DateRange{Start: time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 1, 24, 0, 0, 0, 0, time.UTC)},
	}
}

func TestMailingConflictCancelsMostRecent(t *testing.T) {
	api := &fakeBackend{
		createErr: conflict(),
		mailings: []backend.Mailing{
			{ID: 1, StartDate: "2024-12-02", EndDate: "2024-12-13"},
			{ID: 3, StartDate: "2025-01-13", EndDate: "2025-01-24"},
			{ID: 2, StartDate: "2024-12-16", EndDate: "2024-12-27"},
		},
	}
	e, sessions := newEngine(api)
	ctx := context.Background()
	pickDates(t, e, "2025-01-06", "2025-01-17")

	prompt := last(t, e.Handle(ctx, chat, click(ActionConfirm, "")))
	assert.Equal(t, StateAwaitingConflictResolution, sessions.GetState(chat))
	assert.Contains(t, prompt.Text, "06.01.2025 – 17.01.2025")
	assert.Contains(t, prompt.Text, "13.01.2025 – 24.01.2025")
	assert.Equal(t, []string{ActionRetry}, actions(prompt))

	replies := e.Handle(ctx, chat, click(ActionRetry, ""))
	require.Len(t, replies, 2)
	assert.Equal(t, []int64{3}, api.cancelled)
	assert.Contains(t, replies[0].Text, "#3 (13.01.2025 – 24.01.2025)")
	assert.Len(t, replies[1].Buttons, 5)
	assert.Equal(t, StateAwaitingStart, sessions.GetState(chat))
}

func TestMailingConflictCompletedMailing(t *testing.T) {
	api := &fakeBackend{
		createErr: conflict(),
		mailings:  []backend.Mailing{{ID: 7}},
		cancelErr: fmt.Errorf("cancel: %w", backend.ErrMailingCompleted),
	}
	e, sessions := newEngine(api)
	ctx := context.Background()
	pickDates(t, e, "2025-01-06", "2025-01-17")
	e.Handle(ctx, chat, click(ActionConfirm, ""))

	r := last(t, e.Handle(ctx, chat, click(ActionRetry, "")))
	assert.Contains(t, r.Text, "already been completed")
	assert.Equal(t, state.StateIdle, sessions.GetState(chat))
}

func TestMailingConflictNoMailings(t *testing.T) {
	api := &fakeBackend{createErr: conflict()}
	e, sessions := newEngine(api)
	ctx := context.Background()
	pickDates(t, e, "2025-01-06", "2025-01-17")
	e.Handle(ctx, chat, click(ActionConfirm, ""))

	r := last(t, e.Handle(ctx, chat, click(ActionRetry, "")))
	assert.Contains(t, r.Text, "No existing mailings")
	assert.Empty(t, api.cancelled)
	assert.Equal(t, state.StateIdle, sessions.GetState(chat))
}

func TestMailingConflictListFailureKeepsSession(t *testing.T) {
	api := &fakeBackend{createErr: conflict(), listErr: errors.New("connection refused")}
	e, sessions := newEngine(api)
	ctx := context.Background()
	pickDates(t, e, "2025-01-06", "2025-01-17")
	e.Handle(ctx, chat, click(ActionConfirm, ""))

	r := last(t, e.Handle(ctx, chat, click(ActionRetry, "")))
	assert.Contains(t, r.Text, "connection refused")
	assert.Equal(t, StateAwaitingConflictResolution, sessions.GetState(chat))
}

func TestMailingBackendFailureEndsFlow(t *testing.T) {
	api := &fakeBackend{createErr: &backend.APIError{Status: 500, Message: "boom"}}
	e, sessions := newEngine(api)
	pickDates(t, e, "2025-01-06", "2025-01-17")

	r := last(t, e.Handle(context.Background(), chat, click(ActionConfirm, "")))
	assert.Contains(t, r.Text, "boom")
	assert.Equal(t, state.StateIdle, sessions.GetState(chat))
}

func TestStaleCallbackWhenIdle(t *testing.T) {
	e, _ := newEngine(&fakeBackend{})
	r := e.Handle(context.Background(), chat, click(ActionConfirm, ""))
	require.Len(t, r, 1)
	assert.Equal(t, msgStale, r[0].Text)
	assert.Nil(t, e.Handle(context.Background(), chat, text("hello")))
}

func TestCancel(t *testing.T) {
	e, sessions := newEngine(&fakeBackend{})
	ctx := context.Background()

	assert.Equal(t, "Nothing to cancel.", last(t, e.Cancel(ctx, chat)).Text)
	e.BeginUpload(ctx, chat)
	assert.True(t, e.Active(chat))
	assert.Equal(t, "Cancelled.", last(t, e.Cancel(ctx, chat)).Text)
	assert.Equal(t, state.StateIdle, sessions.GetState(chat))
}

func TestBeginDiscardsPreviousFlow(t *testing.T) {
	e, sessions := newEngine(&fakeBackend{})
	ctx := context.Background()
	e.BeginMailing(ctx, chat)
	e.Handle(ctx, chat, click(ActionStartDate, "2025-01-06"))

	e.BeginTestAccount(ctx, chat)
	assert.Equal(t, StateAwaitingEmail, sessions.GetState(chat))
	_, ok := sessions.GetTemp(chat, keyStart)
	assert.False(t, ok)
}

func TestTestAccountFlow(t *testing.T) {
	api := &fakeBackend{}
	e, sessions := newEngine(api)
	ctx := context.Background()
	e.BeginTestAccount(ctx, chat)

	e.Handle(ctx, chat, text("not-an-email"))
	assert.Equal(t, StateAwaitingEmail, sessions.GetState(chat))

	e.Handle(ctx, chat, text("  qa@example.com "))
	assert.Equal(t, StateAwaitingFullName, sessions.GetState(chat))

	e.Handle(ctx, chat, text("Ivanov"))
	assert.Equal(t, StateAwaitingFullName, sessions.GetState(chat))
	assert.Empty(t, api.accounts)

	r := last(t, e.Handle(ctx, chat, text("Ivanov Ivan Petrovich")))
	assert.Contains(t, r.Text, "created")
	assert.Equal(t, state.StateIdle, sessions.GetState(chat))
	assert.Equal(t, []backend.TestAccount{{Email: "qa@example.com", FirstName: "Ivan Petrovich", LastName: "Ivanov"}}, api.accounts)
}

func TestTestAccountOutcomes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"exists", fmt.Errorf("create: %w", backend.ErrAccountExists), "already exists"},
		{"api", &backend.APIError{Status: 500, Message: "db locked"}, "db locked"},
		{"transport", errors.New("dial tcp: timeout"), "dial tcp: timeout"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, sessions := newEngine(&fakeBackend{accountErr: tc.err})
			ctx := context.Background()
			e.BeginTestAccount(ctx, chat)
			e.Handle(ctx, chat, text("qa@example.com"))

			r := last(t, e.Handle(ctx, chat, text("Ivanov Ivan")))
			assert.Contains(t, r.Text, tc.want)
			assert.Equal(t, state.StateIdle, sessions.GetState(chat))
		})
	}
}

func TestValidEmail(t *testing.T) {
	for _, ok := range []string{"a@b.co", "ivan.petrov@localhost", "a@b.", "@corp.ru", "a@.co", " qa@example.com "} {
		assert.True(t, ValidEmail(ok), ok)
	}
	for _, bad := range []string{"", "plain", "a@b", "mail.example.com"} {
		assert.False(t, ValidEmail(bad), bad)
	}
}

func TestEmailStepAcceptsAtAndDot(t *testing.T) {
	for _, input := range []string{"ivan.petrov@localhost", "a@b.", "@corp.ru", "a@.co"} {
		t.Run(input, func(t *testing.T) {
			e, sessions := newEngine(&fakeBackend{})
			ctx := context.Background()
			e.BeginTestAccount(ctx, chat)

			e.Handle(ctx, chat, text(input))
			assert.Equal(t, StateAwaitingFullName, sessions.GetState(chat))
		})
	}
}

func workbook(t *testing.T, header []string, rows [][]string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sh := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sh, "A1", &header))
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sh, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func engineers(n int) [][]string {
	rows := make([][]string, n)
	for i := range rows {
		rows[i] = []string{fmt.Sprintf("user%02d@example.com", i), fmt.Sprintf("Surname%02d Name", i)}
	}
	return rows
}

func startEngineerUpload(t *testing.T, e *Engine, rows int) Reply {
	t.Helper()
	ctx := context.Background()
	e.BeginUpload(ctx, chat)
	e.Handle(ctx, chat, click(ActionCategory, string(backend.CategoryEngineers)))
	data := workbook(t, []string{"Почта", "ФИ"}, engineers(rows))
	return last(t, e.Handle(ctx, chat, doc("staff.xlsx", data)))
}

func TestUploadMenu(t *testing.T) {
	e, sessions := newEngine(&fakeBackend{})
	r := last(t, e.BeginUpload(context.Background(), chat))
	assert.Equal(t, []string{"engineers", "cases", "activities", "export"}, payloads(r))
	assert.Equal(t, StateAwaitingCategory, sessions.GetState(chat))
}

func TestUploadExport(t *testing.T) {
	e, sessions := newEngine(&fakeBackend{export: []byte("xlsx-bytes")})
	ctx := context.Background()
	e.BeginUpload(ctx, chat)

	r := last(t, e.Handle(ctx, chat, click(ActionCategory, "export")))
	require.NotNil(t, r.File)
	assert.Equal(t, "export_2025-01-06.xlsx", r.File.Name)
	assert.Equal(t, []byte("xlsx-bytes"), r.File.Data)
	assert.Equal(t, state.StateIdle, sessions.GetState(chat))
}

func TestUploadRejectsWrongExtension(t *testing.T) {
	e, sessions := newEngine(&fakeBackend{})
	ctx := context.Background()
	e.BeginUpload(ctx, chat)
	e.Handle(ctx, chat, click(ActionCategory, "engineers"))

	r := last(t, e.Handle(ctx, chat, doc("staff.csv", []byte("a,b"))))
	assert.Contains(t, r.Text, "Only .xlsx")
	assert.Equal(t, StateAwaitingFile, sessions.GetState(chat))

	r = last(t, e.Handle(ctx, chat, doc("staff.xlsx", []byte("not a workbook"))))
	assert.Contains(t, r.Text, "could not be read")
	assert.Equal(t, StateAwaitingFile, sessions.GetState(chat))
}

func TestUploadMissingColumnsMakesNoCall(t *testing.T) {
	api := &fakeBackend{}
	e, sessions := newEngine(api)
	ctx := context.Background()
	e.BeginUpload(ctx, chat)
	e.Handle(ctx, chat, click(ActionCategory, "activities"))

	data := workbook(t, []string{"Код активности", "Другое"}, [][]string{{"A-1", "x"}})
	r := last(t, e.Handle(ctx, chat, doc("act.xlsx", data)))
	assert.Contains(t, r.Text, "Missing: Название активности, Сервис-менеджер")
	assert.Contains(t, r.Text, "Required: Код активности, Название активности, Сервис-менеджер")
	assert.Equal(t, StateAwaitingFile, sessions.GetState(chat))
	assert.Empty(t, api.uploads)
}

func TestUploadPreviewPaging(t *testing.T) {
	e, sessions := newEngine(&fakeBackend{})
	ctx := context.Background()

	first := startEngineerUpload(t, e, 25)
	assert.Equal(t, StateAwaitingPreviewAction, sessions.GetState(chat))
	assert.Contains(t, first.Text, "Page 1 of 3")
	assert.False(t, first.Edit)
	assert.Equal(t, []string{ActionPreviewNext, ActionPreviewSend, ActionPreviewDrop}, actions(first))

	second := last(t, e.Handle(ctx, chat, click(ActionPreviewNext, "")))
	assert.True(t, second.Edit)
	assert.Contains(t, second.Text, "Page 2 of 3")
	assert.Equal(t, []string{ActionPreviewPrev, ActionPreviewNext, ActionPreviewSend, ActionPreviewDrop}, actions(second))

	third := last(t, e.Handle(ctx, chat, click(ActionPreviewNext, "")))
	assert.Contains(t, third.Text, "Page 3 of 3")
	assert.Contains(t, third.Text, "user24@example.com")
	assert.Equal(t, []string{ActionPreviewPrev, ActionPreviewSend, ActionPreviewDrop}, actions(third))

	clamped := last(t, e.Handle(ctx, chat, click(ActionPreviewNext, "")))
	assert.Contains(t, clamped.Text, "Page 3 of 3")

	back := last(t, e.Handle(ctx, chat, click(ActionPreviewPrev, "")))
	assert.Contains(t, back.Text, "Page 2 of 3")
	assert.Equal(t, StateAwaitingPreviewAction, sessions.GetState(chat))
}

func TestUploadSingleNavButtonHidden(t *testing.T) {
	e, _ := newEngine(&fakeBackend{})
	r := startEngineerUpload(t, e, 3)
	assert.Contains(t, r.Text, "Page 1 of 1")
	assert.Equal(t, []string{ActionPreviewSend, ActionPreviewDrop}, actions(r))
}

func TestUploadSend(t *testing.T) {
	api := &fakeBackend{uploadRes: &backend.UploadResult{
		Status:   201,
		Message:  "Imported",
		NewUsers: []backend.NewUser{{FirstName: "Ivan", LastName: "Ivanov", Email: "ivanov@example.com"}},
	}}
	e, sessions := newEngine(api)
	startEngineerUpload(t, e, 2)

	r := last(t, e.Handle(context.Background(), chat, click(ActionPreviewSend, "")))
	assert.Equal(t, []string{"engineers:staff.xlsx"}, api.uploads)
	assert.Contains(t, r.Text, "Imported")
	assert.Contains(t, r.Text, "Ivanov Ivan (ivanov@example.com)")
	assert.Equal(t, state.StateIdle, sessions.GetState(chat))
}

func TestUploadDrop(t *testing.T) {
	api := &fakeBackend{}
	e, sessions := newEngine(api)
	startEngineerUpload(t, e, 2)

	r := last(t, e.Handle(context.Background(), chat, click(ActionPreviewDrop, "")))
	assert.Contains(t, r.Text, "cancelled")
	assert.Empty(t, api.uploads)
	assert.Equal(t, state.StateIdle, sessions.GetState(chat))
}

func TestRenderUploadResult(t *testing.T) {
	partial := RenderUploadResult(&backend.UploadResult{
		Status:       207,
		MissingUsers: backend.Items{"Petrov P."},
		SerializationErrors: []backend.RowError{
			{Row: 4, Errors: backend.Items{"bad date"}},
		},
		ActivitiesWithoutCases: backend.Items{"ACT-9"},
	}, nil)
	assert.Contains(t, partial.Text, "Users without an account")
	assert.Contains(t, partial.Text, "Petrov P.")
	assert.Contains(t, partial.Text, "Row 4: bad date")
	assert.Contains(t, partial.Text, "ACT-9")

	invalid := RenderUploadResult(&backend.UploadResult{
		Status:      400,
		FieldErrors: []backend.FieldError{{Field: "file", Messages: backend.Items{"<empty>"}}},
	}, nil)
	assert.Contains(t, invalid.Text, "file: &lt;empty&gt;")

	other := RenderUploadResult(&backend.UploadResult{Status: 500, Error: "storage offline"}, nil)
	assert.Contains(t, other.Text, "storage offline")

	bare := RenderUploadResult(&backend.UploadResult{Status: 502}, nil)
	assert.Contains(t, bare.Text, "status 502")

	garbled := RenderUploadResult(nil, fmt.Errorf("%w: upload status 502", backend.ErrUndecodable))
	assert.Contains(t, garbled.Text, "try again later")

	transport := RenderUploadResult(nil, errors.New("connection reset"))
	assert.Contains(t, transport.Text, "Upload failed: connection reset")
}
