package bot

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/surveybot/core/logger"
	"github.com/m3rciful/surveybot/core/telegram/format"
	tghelpers "github.com/m3rciful/surveybot/core/telegram/helpers"
	"github.com/m3rciful/surveybot/core/telegram/state"
	"github.com/m3rciful/surveybot/internal/dialog"

	tele "gopkg.in/telebot.v4"
)

// onStart greets the chat. "/start TOKEN" exchanges a one-time token for
// access to the bot.
func (b *Bot) onStart(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	chatID := state.KeyOf(c)
	b.engine.Reset(ctx, chatID)

	token := ""
	if msg := c.Message(); msg != nil {
		token = strings.TrimSpace(msg.Payload)
	}
	if token == "" {
		ok, err := b.users.IsAllowed(ctx, chatID)
		if err != nil || !ok {
			return b.send(c, []dialog.Reply{{Text: msgDenied + "\nOpen the bot with your personal access link."}})
		}
		return b.send(c, []dialog.Reply{{Text: msgWelcome, HTML: true}})
	}

	email, err := b.api.VerifyToken(ctx, token, chatID)
	if err != nil {
		logger.Info(ctx, "access", "token.rejected",
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
		return b.send(c, []dialog.Reply{{Text: "❌ The access link is invalid or expired."}})
	}
	if err := b.users.Allow(ctx, chatID, email); err != nil {
		logger.Error(ctx, "access", "allowlist.write_failed",
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
		return b.send(c, []dialog.Reply{{Text: "❌ Could not grant access, please try again later."}})
	}
	logger.Info(ctx, "access", "access.granted",
		slog.Int64("chat_id", chatID),
		slog.String("email", email),
	)
	return b.send(c, []dialog.Reply{
		{Text: "✅ Access granted for " + format.Code(email) + ".", HTML: true},
		{Text: msgWelcome, HTML: true},
	})
}

func (b *Bot) onSetup(c tele.Context) error {
	b.engine.Reset(tghelpers.BuildContext(c), state.KeyOf(c))
	return b.send(c, []dialog.Reply{{
		Text: "⚙️ <b>Survey settings</b>\n\nChoose what to configure:",
		HTML: true,
		Buttons: [][]dialog.Button{
			{{Text: "🔧 Mailing", Action: cbSetupMailing}},
			{{Text: "🧪 Test account", Action: cbSetupAccount}},
		},
	}})
}

func (b *Bot) onSetupMailing(c tele.Context) error {
	return b.send(c, b.engine.BeginMailing(tghelpers.BuildContext(c), state.KeyOf(c)))
}

func (b *Bot) onSetupAccount(c tele.Context) error {
	return b.send(c, b.engine.BeginTestAccount(tghelpers.BuildContext(c), state.KeyOf(c)))
}

func (b *Bot) onUpload(c tele.Context) error {
	return b.send(c, b.engine.BeginUpload(tghelpers.BuildContext(c), state.KeyOf(c)))
}

func (b *Bot) onCancel(c tele.Context) error {
	return b.send(c, b.engine.Cancel(tghelpers.BuildContext(c), state.KeyOf(c)))
}

// onUsers lists the allow-list for the admin.
func (b *Bot) onUsers(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	entries, err := b.users.List(ctx)
	if err != nil {
		logger.Error(ctx, "access", "allowlist.list_failed", slog.String("err", err.Error()))
		return b.send(c, []dialog.Reply{{Text: "❌ Could not read the allow-list."}})
	}
	if len(entries) == 0 {
		return b.send(c, []dialog.Reply{{Text: "The allow-list is empty."}})
	}
	var sb strings.Builder
	sb.WriteString("👥 <b>Allowed chats</b>\n")
	for _, e := range entries {
		mark := "✅"
		if !e.Allowed {
			mark = "🚫"
		}
		fmt.Fprintf(&sb, "\n%s %s %s", mark, format.Code(fmt.Sprint(e.ChatID)), format.Escape(e.Email))
	}
	return b.send(c, []dialog.Reply{{Text: sb.String(), HTML: true}})
}
