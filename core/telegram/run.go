package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	coreconfig "github.com/m3rciful/surveybot/core/config"
	"github.com/m3rciful/surveybot/core/httpclient"
	"github.com/m3rciful/surveybot/core/logger"
	tghelpers "github.com/m3rciful/surveybot/core/telegram/helpers"
	"github.com/m3rciful/surveybot/core/telegram/middleware"
	tgsender "github.com/m3rciful/surveybot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

const defaultPollTimeout = 10 * time.Second

// Middleware is a global middleware registered via bot.Use, in order.
type Middleware struct {
	Name string
	Use  tele.MiddlewareFunc
}

// RunOptions controls RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	Sender tgsender.Options

	// Middlewares run after the built-in chain (recover, rate limit, update
	// log, reply counting).
	Middlewares []Middleware
	Routes      []Route
	OnLimited   tele.HandlerFunc

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes running components to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// RunTelegram builds the bot and serves updates until ctx is done.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if opts.Config == nil {
		return errors.New("telegram: nil config provided")
	}
	cfg := opts.Config
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}

	poller, pollTimeout := newPoller(cfg)
	started := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: poller,
		// Long polling holds the response until the poll timeout expires.
		Client: httpclient.New(httpclient.Options{
			ResponseTimeout: pollTimeout + 5*time.Second,
			Timeout:         pollTimeout + 20*time.Second,
		}),
		OnError: func(err error, c tele.Context) {
			ctx := context.Background()
			if c != nil {
				ctx = tghelpers.BuildContext(c)
			}
			logger.LogEvent(ctx, logger.TG, slog.LevelError, "bot.error",
				slog.String("status", "fail"),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
		},
	})
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	logPoller(ctx, poller, time.Since(started))

	if cfg.Telegram.RunMode == coreconfig.RunModeLongpoll {
		if err := bot.RemoveWebhook(false); err != nil {
			logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "webhook.remove_failed", slog.String("err", err.Error()))
		}
	}

	dispatcher := tgsender.NewDispatcher(opts.Sender)
	tghelpers.SetDispatcher(dispatcher)
	defer tghelpers.SetDispatcher(nil)

	for _, mw := range builtinMiddlewares(cfg, opts.OnLimited) {
		bot.Use(mw.Use)
	}
	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
			logger.TWire.Debug("middleware registered", slog.String("event", "middleware.use"), slog.String("name", mw.Name))
		}
	}
	for _, r := range opts.Routes {
		if r.Endpoint != nil && r.Handler != nil {
			bot.Handle(r.Endpoint, r.Handler)
		}
	}
	PublishMenu(ctx, bot, reg)

	rt := Runtime{Bot: bot, Dispatcher: dispatcher, Registry: reg}
	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			dispatcher.Close()
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		bot.Start()
		close(done)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		bot.Stop()
		<-done
		if !errors.Is(ctx.Err(), context.Canceled) {
			runErr = ctx.Err()
		}
	case <-done:
	}

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(context.WithoutCancel(ctx), rt)
	}
	dispatcher.Close()
	if failed := dispatcher.Failed(); failed > 0 {
		logger.TG.Warn("outbound sends failed during run",
			slog.String("event", "sender.failed_total"),
			slog.Uint64("failed", failed),
		)
	}
	return errors.Join(runErr, stopErr)
}

func newPoller(cfg *coreconfig.Config) (tele.Poller, time.Duration) {
	timeout := defaultPollTimeout
	if s := cfg.Telegram.LongPollTimeoutSeconds; s > 0 {
		timeout = time.Duration(s) * time.Second
	}
	if cfg.Telegram.RunMode == coreconfig.RunModeWebhook {
		return &tele.Webhook{
			Listen:   net.JoinHostPort(cfg.Webhook.Listen, strconv.Itoa(cfg.Webhook.Port)),
			Endpoint: &tele.WebhookEndpoint{PublicURL: cfg.Webhook.URL},
		}, timeout
	}
	return &tele.LongPoller{Timeout: timeout}, timeout
}

func logPoller(ctx context.Context, p tele.Poller, took time.Duration) {
	attrs := []slog.Attr{slog.Duration("duration", logger.RoundMS(took))}
	switch p := p.(type) {
	case *tele.Webhook:
		attrs = append(attrs,
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
		)
	case *tele.LongPoller:
		attrs = append(attrs,
			slog.String("mode", coreconfig.RunModeLongpoll),
			slog.Duration("timeout", p.Timeout),
		)
	}
	logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "bot.mode", attrs...)
}

func builtinMiddlewares(cfg *coreconfig.Config, onLimited tele.HandlerFunc) []Middleware {
	mws := []Middleware{{Name: "recover", Use: middleware.Recover}}
	if interval := time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond; interval > 0 {
		exclude := make(map[string]bool, len(cfg.RateLimit.ExcludeUpdates))
		for _, kind := range cfg.RateLimit.ExcludeUpdates {
			exclude[kind] = true
		}
		mws = append(mws, Middleware{Name: "rate_limit", Use: middleware.RateLimit(middleware.RateLimitOptions{
			Interval:  interval,
			Exclude:   exclude,
			OnLimited: onLimited,
		})})
	}
	return append(mws,
		Middleware{Name: "update_log", Use: middleware.UpdateLog},
		Middleware{Name: "replies", Use: middleware.CountReplies},
	)
}
