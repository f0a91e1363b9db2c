package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/m3rciful/surveybot/core/logger"
	"github.com/m3rciful/surveybot/core/telegram/callbacks"
	"github.com/m3rciful/surveybot/core/telegram/format"
	tghelpers "github.com/m3rciful/surveybot/core/telegram/helpers"
	"github.com/m3rciful/surveybot/core/telegram/state"
	"github.com/m3rciful/surveybot/internal/backend"
	"github.com/m3rciful/surveybot/internal/dialog"

	tele "gopkg.in/telebot.v4"
)

// SurveyQuestions are the questions engineers answer about each project.
var SurveyQuestions = []string{
	"❓ Did you need the manager's help while resolving cases?",
	"❓ Did the manager take part in resolving cases?",
	"❓ Was that participation useful?",
	"❓ Do you have questions about the current project to discuss with the manager?",
	"💬 Project questions:",
	"⭐ Rate the manager's work on the project from -1 to 2",
	"📝 Comment (free text)",
}

const msgBackendDown = "❌ Could not fetch data from the server. Please try again later."

func (b *Bot) onInformation(c tele.Context) error {
	b.engine.Reset(tghelpers.BuildContext(c), state.KeyOf(c))
	return b.send(c, []dialog.Reply{{
		Text: "ℹ️ <b>Survey information</b>\n\nChoose what to show:",
		HTML: true,
		Buttons: [][]dialog.Button{
			{{Text: "👷 Surveyed engineers", Action: cbInfoStats}},
			{{Text: "❓ Project questions", Action: cbInfoQuestions}},
			{{Text: "📅 Mailings", Action: cbInfoMailings}},
			{{Text: "📨 Mailing email", Action: cbInfoTemplate}},
		},
	}})
}

func (b *Bot) fail(c tele.Context, event string, err error) error {
	logger.Warn(tghelpers.BuildContext(c), "backend", event, slog.String("err", err.Error()))
	return b.send(c, []dialog.Reply{{Text: msgBackendDown}})
}

func (b *Bot) onInfoStats(c tele.Context) error {
	stats, err := b.api.Stats(tghelpers.BuildContext(c))
	if err != nil {
		return b.fail(c, "info.stats_failed", err)
	}
	return b.send(c, []dialog.Reply{{Text: renderStats(stats), HTML: true}})
}

func renderStats(s *backend.Stats) string {
	var sb strings.Builder
	sb.WriteString("📋 <b>Surveyed engineers</b>\n")
	sb.WriteString("<i>Name — sent/unsent</i>\n\n")
	if len(s.Engineers) == 0 {
		sb.WriteString("No engineers with feedback.\n")
	}
	for _, e := range s.Engineers {
		sb.WriteString("👷 " + format.Escape(e.Engineer) + " — " + format.Escape(e.FeedbackStats) + "\n")
	}
	sb.WriteString("\n📊 <b>Total</b>\n")
	fmt.Fprintf(&sb, "✅ Sent: %d\n", s.TotalFeedbacks.Sent)
	fmt.Fprintf(&sb, "❌ Not sent: %d", s.TotalFeedbacks.Unsent)
	return sb.String()
}

func (b *Bot) onInfoQuestions(c tele.Context) error {
	text := "📋 <b>Project questions</b>\n\n" + format.Escape(strings.Join(SurveyQuestions, "\n"))
	return b.send(c, []dialog.Reply{{Text: text, HTML: true}})
}

func (b *Bot) onInfoTemplate(c tele.Context) error {
	tpl, err := b.api.EmailTemplate(tghelpers.BuildContext(c))
	if err != nil {
		return b.fail(c, "info.template_failed", err)
	}
	if strings.TrimSpace(tpl) == "" {
		return b.send(c, []dialog.Reply{{Text: "⚠️ The email template is empty."}})
	}
	return b.send(c, []dialog.Reply{{File: &dialog.File{
		Name:    "email_template.html",
		Data:    []byte(tpl),
		Caption: "📨 Mailing email template",
	}}})
}

func (b *Bot) onInfoMailings(c tele.Context) error {
	list, err := b.api.Mailings(tghelpers.BuildContext(c))
	if err != nil {
		return b.fail(c, "info.mailings_failed", err)
	}
	if len(list) == 0 {
		return b.send(c, []dialog.Reply{{Text: "No mailings are scheduled."}})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	rows := make([][]dialog.Button, 0, len(list))
	for _, m := range list {
		label := fmt.Sprintf("#%d %s – %s", m.ID, b.date(m.StartDate), b.date(m.EndDate))
		if m.Status != "" {
			label += " · " + m.Status
		}
		rows = append(rows, []dialog.Button{{Text: label, Action: cbInfoMailing, Payload: strconv.FormatInt(m.ID, 10)}})
	}
	return b.send(c, []dialog.Reply{{Text: "📅 <b>Mailings</b>\n\nChoose a mailing:", HTML: true, Buttons: rows}})
}

func (b *Bot) mailingID(c tele.Context) (int64, bool) {
	id, err := callbacks.PayloadInt64(c)
	if err != nil || id <= 0 {
		_ = b.send(c, []dialog.Reply{{Text: msgStale}})
		return 0, false
	}
	return id, true
}

func (b *Bot) onInfoMailing(c tele.Context) error {
	id, ok := b.mailingID(c)
	if !ok {
		return nil
	}
	m, err := b.api.Mailing(tghelpers.BuildContext(c), id)
	if err != nil {
		return b.fail(c, "info.mailing_failed", err)
	}
	payload := strconv.FormatInt(id, 10)
	return b.send(c, []dialog.Reply{{
		Text: b.renderMailing(m),
		HTML: true,
		Buttons: [][]dialog.Button{
			{{Text: "📜 Task log", Action: cbInfoTaskLog, Payload: payload}},
			{{Text: "📬 Feedback count", Action: cbInfoCount, Payload: payload}},
			{{Text: "🗑 Cancel mailing", Action: cbInfoCancel, Payload: payload}},
		},
	}})
}

func (b *Bot) renderMailing(m *backend.Mailing) string {
	lines := []string{
		fmt.Sprintf("📅 <b>Mailing #%d</b>", m.ID),
		"",
		format.Field("Start", b.date(m.StartDate)),
		format.Field("End", b.date(m.EndDate)),
	}
	if len(m.IntermediateDates) > 0 {
		dates := make([]string, len(m.IntermediateDates))
		for i, d := range m.IntermediateDates {
			dates[i] = b.date(d)
		}
		lines = append(lines, format.Field("Reminders", strings.Join(dates, ", ")))
	}
	if m.Status != "" {
		lines = append(lines, format.Field("Status", m.Status))
	}
	if m.CreatedAt != "" {
		lines = append(lines, format.Field("Created", b.date(m.CreatedAt)))
	}
	return strings.Join(lines, "\n")
}

func (b *Bot) onInfoTaskLog(c tele.Context) error {
	id, ok := b.mailingID(c)
	if !ok {
		return nil
	}
	entries, err := b.api.TaskLog(tghelpers.BuildContext(c), id)
	if err != nil {
		return b.fail(c, "info.tasklog_failed", err)
	}
	if len(entries) == 0 {
		return b.send(c, []dialog.Reply{{Text: fmt.Sprintf("Mailing #%d has not run yet.", id)}})
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "📜 <b>Task log of mailing #%d</b>\n", id)
	for _, e := range entries {
		fmt.Fprintf(&sb, "\n%s · %s · sent %d, failed %d",
			format.Escape(b.date(e.Date)), format.Escape(format.Or(e.Status, "unknown")), e.Sent, e.Failed)
		if e.Message != "" {
			sb.WriteString("\n   " + format.Italic(e.Message))
		}
	}
	return b.send(c, []dialog.Reply{{Text: sb.String(), HTML: true}})
}

func (b *Bot) onInfoCount(c tele.Context) error {
	id, ok := b.mailingID(c)
	if !ok {
		return nil
	}
	n, err := b.api.FeedbackCount(tghelpers.BuildContext(c), id)
	if err != nil {
		return b.fail(c, "info.count_failed", err)
	}
	return b.send(c, []dialog.Reply{{Text: fmt.Sprintf("📬 Mailing #%d collected %d feedback responses.", id, n)}})
}

func (b *Bot) onInfoCancel(c tele.Context) error {
	id, ok := b.mailingID(c)
	if !ok {
		return nil
	}
	err := b.api.CancelMailing(tghelpers.BuildContext(c), id)
	switch {
	case err == nil:
		return b.send(c, []dialog.Reply{{Text: fmt.Sprintf("🗑 Mailing #%d cancelled.", id)}})
	case errors.Is(err, backend.ErrMailingCompleted):
		return b.send(c, []dialog.Reply{{Text: fmt.Sprintf("❌ Mailing #%d has already been completed and cannot be cancelled.", id)}})
	default:
		return b.fail(c, "info.cancel_failed", err)
	}
}

func (b *Bot) date(s string) string {
	return tghelpers.FormatTimestamp(s, b.loc)
}
