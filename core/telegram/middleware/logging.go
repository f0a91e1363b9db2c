package middleware

import (
	"log/slog"

	"github.com/m3rciful/surveybot/core/logger"
	"github.com/m3rciful/surveybot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/surveybot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// UpdateLog builds the update context and writes a sampled "update.received"
// line. Message text is never logged: chats type e-mails and names into flows.
func UpdateLog(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		if !logger.ShouldSampleDebug() {
			return next(c)
		}

		attrs := []slog.Attr{slog.String("kind", updateKind(c))}
		if chat := c.Chat(); chat != nil {
			attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
		}
		if user := c.Sender(); user != nil && user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		switch msg := c.Message(); {
		case c.Callback() != nil:
			attrs = append(attrs,
				slog.String("cb_key", logger.SanitizeLimit(callbacks.CallbackKey(c), 64)),
				slog.String("payload", logger.SanitizeLimit(callbacks.CallbackPayload(c), 64)),
			)
		case msg != nil && msg.Document != nil:
			attrs = append(attrs,
				slog.String("file", logger.SanitizeLimit(msg.Document.FileName, 128)),
				slog.Int64("size", msg.Document.FileSize),
			)
		case msg != nil:
			attrs = append(attrs, slog.Int("text_len", len([]rune(msg.Text))))
		}
		logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "update.received", attrs...)
		return next(c)
	}
}

func updateKind(c tele.Context) string {
	upd := c.Update()
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil && upd.Message.Document != nil:
		return "document"
	case upd.Message != nil:
		return "message"
	case upd.Query != nil:
		return "inline_query"
	default:
		return "other"
	}
}
