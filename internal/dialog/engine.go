// Package dialog runs the per-chat conversations of the bot: mailing setup,
// test account creation and spreadsheet upload with preview.
//
// The engine is transport-agnostic. It consumes Events and produces Replies;
// the bot layer maps Telegram updates onto Events and Replies onto messages.
// Session data lives in a state.Manager keyed by chat id.
package dialog

import (
	"context"
	"log/slog"
	"time"

	"github.com/m3rciful/surveybot/core/logger"
	"github.com/m3rciful/surveybot/core/metrics"
	"github.com/m3rciful/surveybot/core/telegram/state"
	"github.com/m3rciful/surveybot/internal/backend"
	"github.com/m3rciful/surveybot/internal/preview"
	"github.com/m3rciful/surveybot/internal/schedule"
)

// Conversation steps. Every flow ends by clearing the session back to state.StateIdle.
const (
	StateAwaitingStart              state.State = "mailing.awaiting_start"
	StateAwaitingEnd                state.State = "mailing.awaiting_end"
	StateAwaitingConfirmation       state.State = "mailing.awaiting_confirmation"
	StateAwaitingConflictResolution state.State = "mailing.awaiting_conflict_resolution"

	StateAwaitingEmail    state.State = "account.awaiting_email"
	StateAwaitingFullName state.State = "account.awaiting_full_name"

	StateAwaitingCategory      state.State = "upload.awaiting_category"
	StateAwaitingFile          state.State = "upload.awaiting_file"
	StateAwaitingPreviewAction state.State = "upload.awaiting_preview_action"
)

// States lists every non-idle step.
var States = []state.State{
	StateAwaitingStart, StateAwaitingEnd, StateAwaitingConfirmation, StateAwaitingConflictResolution,
	StateAwaitingEmail, StateAwaitingFullName,
	StateAwaitingCategory, StateAwaitingFile, StateAwaitingPreviewAction,
}

// Button actions. They double as Telegram callback uniques.
const (
	ActionStartDate   = "mail_start"
	ActionEndDate     = "mail_end"
	ActionConfirm     = "mail_confirm"
	ActionReject      = "mail_reject"
	ActionRetry       = "mail_retry"
	ActionCategory    = "upl_category"
	ActionPreviewPrev = "preview_prev"
	ActionPreviewNext = "preview_next"
	ActionPreviewSend = "preview_send"
	ActionPreviewDrop = "preview_cancel"
)

// Actions lists every button action the engine consumes.
var Actions = []string{
	ActionStartDate, ActionEndDate, ActionConfirm, ActionReject, ActionRetry,
	ActionCategory, ActionPreviewPrev, ActionPreviewNext, ActionPreviewSend, ActionPreviewDrop,
}

// Kind tells what an Event carries.
type Kind int

const (
	KindCallback Kind = iota + 1
	KindText
	KindDocument
)

// Document is an attachment whose content is fetched on demand.
type Document struct {
	Name  string
	Size  int64
	Fetch func(ctx context.Context) ([]byte, error)
}

// Event is one inbound interaction of a chat.
type Event struct {
	Kind     Kind
	Action   string
	Payload  string
	Text     string
	Document *Document
}

// Button is an inline button bound to an action.
type Button struct {
	Text    string
	Action  string
	Payload string
}

// File is an outbound attachment.
type File struct {
	Name    string
	Data    []byte
	Caption string
}

// Reply is one outbound message. Edit asks to replace the message that
// carried the pressed button instead of sending a new one.
type Reply struct {
	Text    string
	HTML    bool
	Buttons [][]Button
	Edit    bool
	File    *File
}

// Backend is the part of the backend API the conversations use.
type Backend interface {
	CreateMailing(ctx context.Context, s backend.MailingSettings) error
	Mailings(ctx context.Context) ([]backend.Mailing, error)
	CancelMailing(ctx context.Context, id int64) error
	CreateTestAccount(ctx context.Context, acc backend.TestAccount) error
	Upload(ctx context.Context, cat backend.Category, filename string, data []byte) (*backend.UploadResult, error)
	Export(ctx context.Context) ([]byte, error)
}

// Options tune the mailing calendar and the preview.
type Options struct {
	Location      *time.Location
	CutoffHour    int
	EndOffsetDays int
	Candidates    int
	SendTime      string
	PageSize      int
	Now           func() time.Time
}

func (o *Options) normalize() {
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.CutoffHour <= 0 {
		o.CutoffHour = schedule.DefaultCutoffHour
	}
	if o.EndOffsetDays <= 0 {
		o.EndOffsetDays = schedule.DefaultEndOffsetDays
	}
	if o.Candidates <= 0 {
		o.Candidates = schedule.DefaultCandidates
	}
	if o.SendTime == "" {
		o.SendTime = "10:00"
	}
	if o.PageSize <= 0 {
		o.PageSize = preview.DefaultPageSize
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Engine drives the conversations.
type Engine struct {
	sessions state.Manager
	api      Backend
	opts     Options
}

// New builds an engine over the given session store and backend.
func New(sessions state.Manager, api Backend, opts Options) *Engine {
	opts.normalize()
	return &Engine{sessions: sessions, api: api, opts: opts}
}

// Session temp-data keys.
const (
	keyStart    = "start_date"
	keyEnd      = "end_date"
	keyDraft    = "draft"
	keyEmail    = "email"
	keyCategory = "category"
	keyTable    = "table"
	keyFile     = "file"
	keyFilename = "filename"
	keyPage     = "page"
)

const (
	msgStale     = "This action is out of date."
	msgUnhandled = "Something went wrong, the current action was reset. Please start again."
)

// Handle feeds ev to the step the chat is currently in.
func (e *Engine) Handle(ctx context.Context, chatID int64, ev Event) []Reply {
	switch st := e.sessions.GetState(chatID); st {
	case state.StateIdle:
		return e.idle(ev)
	case StateAwaitingStart:
		return e.onStartDate(ctx, chatID, ev)
	case StateAwaitingEnd:
		return e.onEndDate(ctx, chatID, ev)
	case StateAwaitingConfirmation:
		return e.onConfirmation(ctx, chatID, ev)
	case StateAwaitingConflictResolution:
		return e.onConflictResolution(ctx, chatID, ev)
	case StateAwaitingEmail:
		return e.onEmail(ctx, chatID, ev)
	case StateAwaitingFullName:
		return e.onFullName(ctx, chatID, ev)
	case StateAwaitingCategory:
		return e.onCategory(ctx, chatID, ev)
	case StateAwaitingFile:
		return e.onFile(ctx, chatID, ev)
	case StateAwaitingPreviewAction:
		return e.onPreviewAction(ctx, chatID, ev)
	default:
		logger.Error(ctx, "dialog", "fsm.unhandled_state",
			slog.Int64("chat_id", chatID),
			slog.String("state", string(st)),
		)
		e.finish(ctx, chatID)
		return []Reply{{Text: msgUnhandled}}
	}
}

// Cancel abandons whatever flow the chat is in.
func (e *Engine) Cancel(ctx context.Context, chatID int64) []Reply {
	if !e.sessions.InProgress(chatID) {
		return []Reply{{Text: "Nothing to cancel."}}
	}
	e.finish(ctx, chatID)
	return []Reply{{Text: "Cancelled."}}
}

// Reset silently drops any flow the chat is in.
func (e *Engine) Reset(ctx context.Context, chatID int64) {
	if e.sessions.InProgress(chatID) {
		e.finish(ctx, chatID)
	}
}

// Active reports whether the chat is inside a flow.
func (e *Engine) Active(chatID int64) bool {
	return e.sessions.InProgress(chatID)
}

func (e *Engine) idle(ev Event) []Reply {
	if ev.Kind == KindCallback {
		return stale()
	}
	return nil
}

func stale() []Reply { return []Reply{{Text: msgStale}} }

// begin discards any previous session and enters the first step of a flow.
func (e *Engine) begin(ctx context.Context, chatID int64, to state.State) {
	if e.sessions.InProgress(chatID) {
		e.sessions.Clear(chatID)
	}
	e.transition(ctx, chatID, to)
}

func (e *Engine) transition(ctx context.Context, chatID int64, to state.State) {
	from := e.sessions.GetState(chatID)
	e.sessions.SetState(chatID, to)
	e.logTransition(ctx, chatID, from, to)
}

// finish clears the session; the chat returns to no active flow.
func (e *Engine) finish(ctx context.Context, chatID int64) {
	from := e.sessions.GetState(chatID)
	e.sessions.Clear(chatID)
	e.logTransition(ctx, chatID, from, state.StateIdle)
}

func (e *Engine) logTransition(ctx context.Context, chatID int64, from, to state.State) {
	metrics.Transitions.WithLabelValues(string(from), string(to)).Inc()
	logger.Info(ctx, "dialog", "fsm.transition",
		slog.Int64("chat_id", chatID),
		slog.String("from_state", string(from)),
		slog.String("to_state", string(to)),
	)
}

func (e *Engine) now() time.Time {
	return e.opts.Now().In(e.opts.Location)
}
