package telegram

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/surveybot/core/logger"
	"github.com/m3rciful/surveybot/core/metrics"
	tghelpers "github.com/m3rciful/surveybot/core/telegram/helpers"
	"github.com/m3rciful/surveybot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// run invokes h under the given handler name and writes the
// "handler.handled" summary. A nil h is logged as skipped.
func run(c tele.Context, name string, start time.Time, h tele.HandlerFunc, extra ...slog.Attr) error {
	ctx := tghelpers.WithHandler(c, name)
	var err error
	outcome := "skip"
	if h != nil {
		err = h(c)
		outcome = "ok"
		if err != nil {
			outcome = "fail"
		}
	}

	took := time.Since(start)
	replies := middleware.RepliesOf(c)
	attrs := append([]slog.Attr{
		slog.String("status", outcome),
		slog.Int("messages", replies.Messages),
		slog.Bool("kb", replies.Keyboard),
		slog.Duration("duration", logger.RoundMS(took)),
	}, extra...)
	lvl := slog.LevelInfo
	if err != nil {
		lvl = slog.LevelError
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", errorCode(err)),
		)
	}
	logger.LogEvent(ctx, logger.TG, lvl, "handler.handled", attrs...)

	metrics.HandlerDuration.WithLabelValues(name, outcome).Observe(took.Seconds())
	if replies.Messages > 0 {
		metrics.MessagesSent.WithLabelValues(name).Add(float64(replies.Messages))
	}
	return err
}

func handlerName(name string) string {
	name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
	if name == "" {
		return "unknown"
	}
	return strings.ReplaceAll(name, " ", "_")
}

// errorCode prefers a Code() carried anywhere in the chain.
func errorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := strings.TrimSpace(coded.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	if errors.Is(err, tele.ErrBlockedByUser) {
		return "BLOCKED"
	}
	return "INTERNAL"
}
