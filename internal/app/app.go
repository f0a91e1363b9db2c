// Package app composes the survey bot from its configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/surveybot/core/bootstrap"
	"github.com/m3rciful/surveybot/core/logger"
	"github.com/m3rciful/surveybot/core/metrics"
	coretelegram "github.com/m3rciful/surveybot/core/telegram"
	"github.com/m3rciful/surveybot/core/telegram/middleware"
	"github.com/m3rciful/surveybot/core/telegram/state"
	"github.com/m3rciful/surveybot/internal/allowlist"
	"github.com/m3rciful/surveybot/internal/backend"
	"github.com/m3rciful/surveybot/internal/bot"
	"github.com/m3rciful/surveybot/internal/dialog"
)

// App is the assembled bot.
type App struct {
	cfg      *Config
	db       *sqlx.DB
	sessions state.Manager
	users    *allowlist.Store
	bot      *bot.Bot

	stopSweeper func()
}

// Bootstrap initializes logging and storage, then wires the handlers.
func Bootstrap(cfg *Config) (*App, error) {
	res, err := bootstrap.Run(bootstrap.Options{Config: &cfg.Config, Database: cfg.Database})
	if err != nil {
		return nil, err
	}

	api, err := backend.New(cfg.Backend)
	if err != nil {
		_ = res.DB.Close()
		return nil, fmt.Errorf("app: backend client: %w", err)
	}

	sessions := state.NewMemoryManager()
	users := allowlist.NewStore(res.DB)
	engine := dialog.New(sessions, api, cfg.Survey.DialogOptions())

	return &App{
		cfg:      cfg,
		db:       res.DB,
		sessions: sessions,
		users:    users,
		bot:      bot.New(engine, sessions, api, users, cfg.Survey.Location()),
	}, nil
}

// TelegramRunOptions assembles routes, middleware and lifecycle hooks.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()
	if err := a.bot.Register(reg); err != nil {
		return coretelegram.RunOptions{}, fmt.Errorf("app: register handlers: %w", err)
	}

	gate := allowlist.NewGate(a.users)
	mws := []coretelegram.Middleware{
		{Name: "access", Use: middleware.AccessGateMiddleware(gate, a.bot.Denied())},
		{Name: "serialize", Use: state.Serialize(a.sessions)},
	}

	return coretelegram.RunOptions{
		Config:      &a.cfg.Config,
		Registry:    reg,
		Middlewares: mws,
		Routes:      coretelegram.Routes(reg, a.sessions, a.bot.Fallbacks(a.cfg.Telegram.AdminID)),
		OnStart:     a.onStart,
		OnStop:      a.onStop,
	}, nil
}

func (a *App) onStart(ctx context.Context, _ coretelegram.Runtime) error {
	ttl := time.Duration(a.cfg.Session.IdleTTLMinutes) * time.Minute
	stop, err := state.StartSweeper(a.sessions, a.cfg.Session.SweepSpec, ttl)
	if err != nil {
		return fmt.Errorf("app: session sweeper: %w", err)
	}
	a.stopSweeper = stop

	if addr := a.cfg.Metrics.Listen; addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr); err != nil {
				logger.Error(ctx, "metrics", "ops.serve_failed",
					slog.String("listen", addr),
					slog.String("err", err.Error()),
				)
			}
		}()
	}
	return nil
}

func (a *App) onStop(context.Context, coretelegram.Runtime) error {
	if a.stopSweeper != nil {
		a.stopSweeper()
	}
	return a.db.Close()
}
