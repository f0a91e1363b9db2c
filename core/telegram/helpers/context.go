// Package helpers holds the Telegram-side plumbing handlers share: the
// per-update logging context and the queued send helpers.
package helpers

import (
	"context"

	"github.com/m3rciful/surveybot/core/logger"

	tele "gopkg.in/telebot.v4"
)

const ctxSlot = "surveybot.ctx"

// Meta extracts the logging metadata of the current update.
func Meta(c tele.Context) logger.Meta {
	var m logger.Meta
	if upd := c.Update(); upd.ID != 0 {
		m.UpdateID = upd.ID
	}
	if chat := c.Chat(); chat != nil {
		m.ChatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		m.UserID = user.ID
	}
	m.RID = logger.BuildRID(m.UpdateID, m.ChatID, m.UserID)
	return m
}

// BuildContext returns the context of the current update, creating and
// caching it on first use.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := c.Get(ctxSlot).(context.Context); ok {
		return ctx
	}
	ctx := logger.WithMeta(context.Background(), Meta(c))
	ctx = logger.WithLogger(ctx, logger.TG)
	c.Set(ctxSlot, ctx)
	return ctx
}

// WithHandler records the serving handler on the update context.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := logger.WithHandler(BuildContext(c), handler)
	c.Set(ctxSlot, ctx)
	return ctx
}
