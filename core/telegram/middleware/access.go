package middleware

import (
	"context"
	"log/slog"

	"github.com/m3rciful/surveybot/core/logger"
	"github.com/m3rciful/surveybot/core/metrics"
	tghelpers "github.com/m3rciful/surveybot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// AdminOptions defines how admin-only checks should behave.
type AdminOptions struct {
	AdminID  int64
	OnReject tele.HandlerFunc
}

// AdminOnlyMiddleware ensures that only the admin user can invoke downstream handlers.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if opts.AdminID != 0 && (c.Sender() == nil || c.Sender().ID != opts.AdminID) {
				if opts.OnReject != nil {
					return opts.OnReject(c)
				}
				return nil
			}
			return next(c)
		}
	}
}

// Permitter decides whether an update from a chat may reach the handlers.
type Permitter interface {
	Permit(ctx context.Context, chatID int64, text string) bool
}

// AccessGateMiddleware drops updates from chats the permitter refuses.
// onDeny answers the refused update; nil stays silent.
func AccessGateMiddleware(p Permitter, onDeny tele.HandlerFunc) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			chat := c.Chat()
			if chat == nil {
				return next(c)
			}
			ctx := tghelpers.BuildContext(c)
			if p.Permit(ctx, chat.ID, c.Text()) {
				return next(c)
			}
			metrics.AccessDenied.Inc()
			logger.LogEvent(ctx, logger.Access, slog.LevelInfo, "access.denied",
				slog.Int64("chat_id", chat.ID),
			)
			if c.Callback() != nil {
				_ = c.Respond()
			}
			if onDeny != nil {
				return onDeny(c)
			}
			return nil
		}
	}
}
