package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/surveybot/core/logger"
	tghelpers "github.com/m3rciful/surveybot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures RateLimit.
type RateLimitOptions struct {
	Interval time.Duration
	// Exclude lists update kinds that bypass the limit: "callback", "message", "document", "inline_query".
	Exclude   map[string]bool
	OnLimited tele.HandlerFunc
}

// RateLimit drops updates a user sends less than Interval after their previous one.
func RateLimit(opts RateLimitOptions) tele.MiddlewareFunc {
	var (
		mu    sync.Mutex
		last  = make(map[int64]time.Time)
		prune time.Time
	)
	limited := func(userID int64, now time.Time) bool {
		mu.Lock()
		defer mu.Unlock()
		if now.Sub(prune) > time.Minute {
			for id, t := range last {
				if now.Sub(t) > opts.Interval {
					delete(last, id)
				}
			}
			prune = now
		}
		if t, ok := last[userID]; ok && now.Sub(t) < opts.Interval {
			return true
		}
		last[userID] = now
		return false
	}

	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 || opts.Exclude[updateKind(c)] {
				return next(c)
			}
			if !limited(user.ID, time.Now()) {
				return next(c)
			}
			logger.LogEvent(tghelpers.BuildContext(c), logger.TG, slog.LevelWarn, "update.rate_limited",
				slog.String("status", "rate_limited"),
				slog.String("kind", updateKind(c)),
			)
			if c.Callback() != nil {
				_ = c.Respond()
			}
			if opts.OnLimited != nil {
				return opts.OnLimited(c)
			}
			return nil
		}
	}
}
