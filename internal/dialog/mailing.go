package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/surveybot/core/logger"
	"github.com/m3rciful/surveybot/core/telegram/state"
	"github.com/m3rciful/surveybot/internal/backend"
	"github.com/m3rciful/surveybot/internal/schedule"
)

// BeginMailing starts the mailing setup and offers start dates.
func (e *Engine) BeginMailing(ctx context.Context, chatID int64) []Reply {
	e.begin(ctx, chatID, StateAwaitingStart)
	return []Reply{e.startPrompt("Choose the survey start date:")}
}

func (e *Engine) startPrompt(text string) Reply {
	days := schedule.StartCandidates(e.now(), e.opts.CutoffHour, e.opts.Candidates)
	return Reply{Text: text, Buttons: dateButtons(days, ActionStartDate)}
}

func dateButtons(days []time.Time, action string) [][]Button {
	rows := make([][]Button, 0, len(days))
	for _, d := range days {
		rows = append(rows, []Button{{Text: schedule.Label(d), Action: action, Payload: schedule.FormatISO(d)}})
	}
	return rows
}

func (e *Engine) parseDate(payload string) (time.Time, bool) {
	d, err := schedule.ParseISO(payload, e.opts.Location)
	return d, err == nil
}

func (e *Engine) onStartDate(ctx context.Context, chatID int64, ev Event) []Reply {
	if ev.Kind != KindCallback {
		return []Reply{e.startPrompt("Please pick the start date with the buttons:")}
	}
	if ev.Action != ActionStartDate {
		return stale()
	}
	start, ok := e.parseDate(ev.Payload)
	if !ok {
		return []Reply{e.startPrompt("Unrecognised date. Choose the survey start date:")}
	}
	e.sessions.SetTemp(chatID, keyStart, start)
	e.transition(ctx, chatID, StateAwaitingEnd)
	return []Reply{e.endPrompt(start, fmt.Sprintf("Start date: %s\n\nChoose the end date:", schedule.FormatDisplay(start)))}
}

func (e *Engine) endPrompt(start time.Time, text string) Reply {
	days := schedule.EndCandidates(start, e.opts.EndOffsetDays, e.opts.Candidates)
	return Reply{Text: text, Buttons: dateButtons(days, ActionEndDate)}
}

func (e *Engine) onEndDate(ctx context.Context, chatID int64, ev Event) []Reply {
	start, ok := state.Temp[time.Time](e.sessions, chatID, keyStart)
	if !ok {
		// Session lost its data; restart the flow rather than guess.
		e.begin(ctx, chatID, StateAwaitingStart)
		return []Reply{e.startPrompt("The mailing draft was lost. Choose the survey start date:")}
	}
	if ev.Kind != KindCallback {
		return []Reply{e.endPrompt(start, "Please pick the end date with the buttons:")}
	}
	if ev.Action != ActionEndDate {
		return stale()
	}
	end, ok := e.parseDate(ev.Payload)
	if !ok {
		return []Reply{e.endPrompt(start, "Unrecognised date. Choose the end date:")}
	}
	draft, err := schedule.NewDraft(start, end)
	if err != nil {
		return []Reply{e.endPrompt(start, "The end date must be after the start date. Choose the end date:")}
	}
	e.sessions.SetTemp(chatID, keyEnd, end)
	e.sessions.SetTemp(chatID, keyDraft, draft)
	e.transition(ctx, chatID, StateAwaitingConfirmation)
	return []Reply{
		{Text: "End date: " + schedule.FormatDisplay(end)},
		{Text: e.summary(draft), HTML: true, Buttons: [][]Button{
			{{Text: "✅ Yes", Action: ActionConfirm}},
			{{Text: "❌ No", Action: ActionReject}},
		}},
	}
}

func (e *Engine) summary(d schedule.Draft) string {
	var b strings.Builder
	b.WriteString("<b>Mailing settings</b>\n\n")
	fmt.Fprintf(&b, "<b>Survey start:</b> %s\n", schedule.Label(d.Start))
	fmt.Fprintf(&b, "<b>Survey end:</b> %s\n\n", schedule.Label(d.End))
	fmt.Fprintf(&b, "<b>Days in survey:</b> %d\n\n", d.Days())
	b.WriteString("<b>Reminder dates:</b>\n")
	for _, r := range d.Reminders {
		b.WriteString(schedule.Label(r) + "\n")
	}
	fmt.Fprintf(&b, "\n<b>Send time:</b> %s\n\n", e.opts.SendTime)
	b.WriteString("Save this mailing?")
	return b.String()
}

func (e *Engine) onConfirmation(ctx context.Context, chatID int64, ev Event) []Reply {
	if ev.Kind != KindCallback {
		return []Reply{{Text: "Please answer with the Yes or No buttons above."}}
	}
	switch ev.Action {
	case ActionConfirm:
		return e.submitMailing(ctx, chatID)
	case ActionReject:
		e.finish(ctx, chatID)
		replies := []Reply{{Text: "❌ Settings discarded."}}
		return append(replies, e.BeginMailing(ctx, chatID)...)
	default:
		return stale()
	}
}

func (e *Engine) submitMailing(ctx context.Context, chatID int64) []Reply {
	draft, ok := state.Temp[schedule.Draft](e.sessions, chatID, keyDraft)
	if !ok {
		e.finish(ctx, chatID)
		return []Reply{{Text: "The mailing draft was lost. Run /setup again."}}
	}
	err := e.api.CreateMailing(ctx, backend.MailingSettings{
		ChatID:            chatID,
		StartDate:         schedule.FormatISO(draft.Start),
		EndDate:           schedule.FormatISO(draft.End),
		IntermediateDates: draft.ReminderISO(),
	})

	var conflict *backend.ConflictError
	switch {
	case err == nil:
		e.finish(ctx, chatID)
		return []Reply{{Text: "✅ Mailing saved."}}
	case errors.As(err, &conflict):
		e.transition(ctx, chatID, StateAwaitingConflictResolution)
		return []Reply{{
			Text: fmt.Sprintf("⚠️ The mailing overlaps an existing one.\n\nRequested: %s\nExisting: %s\n\n"+
				"Cancel the existing mailing and choose new dates?", conflict.Requested, conflict.Existing),
			Buttons: [][]Button{{{Text: "🔁 Cancel existing and retry", Action: ActionRetry}}},
		}}
	default:
		logger.Warn(ctx, "dialog", "mailing.create_failed",
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
		e.finish(ctx, chatID)
		return []Reply{{Text: "❌ Failed to save the mailing: " + reason(err)}}
	}
}

func (e *Engine) onConflictResolution(ctx context.Context, chatID int64, ev Event) []Reply {
	if ev.Kind != KindCallback {
		return []Reply{{Text: "Press \"Cancel existing and retry\" or send /cancel."}}
	}
	if ev.Action != ActionRetry {
		return stale()
	}

	list, err := e.api.Mailings(ctx)
	if err != nil {
		return []Reply{{Text: "❌ Could not load mailings: " + reason(err)}}
	}
	if len(list) == 0 {
		e.finish(ctx, chatID)
		return []Reply{{Text: "No existing mailings found."}}
	}
	latest := list[0]
	for _, m := range list[1:] {
		if m.ID > latest.ID {
			latest = m
		}
	}

	if err := e.api.CancelMailing(ctx, latest.ID); err != nil {
		if errors.Is(err, backend.ErrMailingCompleted) {
			e.finish(ctx, chatID)
			return []Reply{{Text: fmt.Sprintf("❌ Mailing #%d has already been completed and cannot be cancelled.", latest.ID)}}
		}
		return []Reply{{Text: fmt.Sprintf("❌ Could not cancel mailing #%d: %s", latest.ID, reason(err))}}
	}

	e.sessions.ClearTemp(chatID, keyStart)
	e.sessions.ClearTemp(chatID, keyEnd)
	e.sessions.ClearTemp(chatID, keyDraft)
	e.transition(ctx, chatID, StateAwaitingStart)
	return []Reply{
		{Text: fmt.Sprintf("🗑 Mailing #%d (%s – %s) cancelled.", latest.ID, displayISO(latest.StartDate), displayISO(latest.EndDate))},
		e.startPrompt("Choose the survey start date:"),
	}
}

// displayISO reformats a backend yyyy-mm-dd date for operators, leaving
// anything unparseable untouched.
func displayISO(s string) string {
	if len(s) >= len(schedule.ISOLayout) {
		if d, err := schedule.ParseISO(s[:len(schedule.ISOLayout)], time.UTC); err == nil {
			return schedule.FormatDisplay(d)
		}
	}
	return s
}

// reason renders an error for operators without the package prefixes.
func reason(err error) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return fmt.Sprintf("status %d", apiErr.Status)
	}
	return err.Error()
}
