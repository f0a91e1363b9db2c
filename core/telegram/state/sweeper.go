package state

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/m3rciful/surveybot/core/logger"
)

// StartSweeper periodically evicts sessions idle for longer than ttl.
// spec uses robfig/cron syntax, e.g. "@every 10m". The returned func stops the schedule.
func StartSweeper(mgr Manager, spec string, ttl time.Duration) (func(), error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		n := mgr.Sweep(ttl)
		if n == 0 {
			return
		}
		logger.Info(context.Background(), "sessions", "sessions.swept",
			slog.Int("sessions_swept", n),
			slog.Int("count", mgr.Len()),
		)
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return func() {
		<-c.Stop().Done()
	}, nil
}
