// Package logger is the structured logging stack of the bot: a slog handler
// writing ordered kv or JSON lines, per-component loggers and update metadata
// carried through context.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/m3rciful/surveybot/core/buildinfo"
	coreconfig "github.com/m3rciful/surveybot/core/config"
)

var (
	initOnce sync.Once
	stopOnce sync.Once

	out     *lineWriter
	files   []io.Closer
	level   slog.LevelVar
	sampler debugSampler

	// L is the base logger.
	L *slog.Logger

	// DB logs database connections.
	DB *slog.Logger
	// MIG logs schema migrations.
	MIG *slog.Logger
	// TG logs the Telegram runtime.
	TG *slog.Logger
	// TWire logs handler and middleware wiring at startup.
	TWire *slog.Logger
	// API logs calls to the survey backend.
	API *slog.Logger
	// Access logs allow-list decisions.
	Access *slog.Logger
	// Ops logs the metrics listener.
	Ops *slog.Logger
)

func init() {
	L = slog.Default()
	bindComponents()
}

// InitLogger installs the structured handler described by cfg. Only the first call has effect.
func InitLogger(cfg *coreconfig.Config) error {
	var err error
	initOnce.Do(func() {
		var logging coreconfig.LoggingConfig
		if cfg != nil {
			logging = cfg.Logging
		}
		level.Set(parseLevel(logging.Level))
		sampler.set(parseSample(logging.DebugSample))

		sinks := []io.Writer{os.Stdout}
		f, ferr := openLogFile(logging)
		if ferr != nil {
			err = ferr
			return
		}
		if f != nil {
			sinks = append(sinks, f)
			files = append(files, f)
		}
		out = newLineWriter(sinks, 256)

		L = slog.New(newLineHandler(handlerOptions{
			level:  &level,
			out:    out,
			format: parseFormat(logging),
			order:  parseOrder(logging.KeysOrder),
		}))
		slog.SetDefault(L)
		bindComponents()

		L.LogAttrs(context.Background(), slog.LevelInfo, "startup",
			slog.String("event", "startup"),
			slog.String("go_version", runtime.Version()),
			slog.String("build", buildinfo.String()),
			slog.String("profile", profile(logging)),
		)
	})
	return err
}

func bindComponents() {
	DB = Component("db")
	MIG = Component("db.migrate")
	TG = Component("tg")
	TWire = Component("tg.wire")
	API = Component("backend")
	Access = Component("access")
	Ops = Component("metrics")
}

// Shutdown flushes pending lines and closes log files.
func Shutdown() error {
	var errs []error
	stopOnce.Do(func() {
		if out != nil {
			errs = append(errs, out.Flush(), out.Close())
		}
		for _, f := range files {
			errs = append(errs, f.Close())
		}
	})
	return errors.Join(errs...)
}

func openLogFile(cfg coreconfig.LoggingConfig) (*os.File, error) {
	dir, name := strings.TrimSpace(cfg.Dir), strings.TrimSpace(cfg.BotFile)
	if dir == "" {
		return nil, nil
	}
	if name == "" {
		name = "surveybot.log"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logger: create %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open log file: %w", err)
	}
	return f, nil
}

func profile(cfg coreconfig.LoggingConfig) string {
	if p := strings.ToLower(strings.TrimSpace(cfg.Profile)); p != "" {
		return p
	}
	return "prod"
}

func parseFormat(cfg coreconfig.LoggingConfig) lineFormat {
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "kv", "text", "pretty":
		return formatKV
	case "json":
		return formatJSON
	}
	if p := profile(cfg); p == "debug" || p == "dev" {
		return formatKV
	}
	return formatJSON
}

func parseOrder(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return nil
	}
	var order []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			order = append(order, k)
		}
	}
	return order
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// parseSample reads "n/d" or "d" (meaning 1/d). "0" disables sampling; junk falls back to 1/50.
func parseSample(raw string) (uint64, uint64) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 1, 50
	}
	num, den := "1", raw
	if a, b, ok := strings.Cut(raw, "/"); ok {
		num, den = a, b
	}
	n, err1 := strconv.ParseUint(strings.TrimSpace(num), 10, 64)
	d, err2 := strconv.ParseUint(strings.TrimSpace(den), 10, 64)
	switch {
	case err1 != nil || err2 != nil:
		return 1, 50
	case d == 0:
		return 0, 0
	case n > d:
		return d, d
	}
	return n, d
}

// debugSampler lets n of every d calls through; zero lets everything through.
type debugSampler struct {
	n, d  atomic.Uint64
	calls atomic.Uint64
}

func (s *debugSampler) set(n, d uint64) {
	s.n.Store(n)
	s.d.Store(d)
	s.calls.Store(0)
}

func (s *debugSampler) allow() bool {
	n, d := s.n.Load(), s.d.Load()
	if d == 0 {
		return true
	}
	return (s.calls.Add(1)-1)%d < n
}

// ShouldSampleDebug reports whether a high-volume debug line should be written.
// LOG_TRACE=1 lets every line through.
func ShouldSampleDebug() bool {
	switch strings.ToLower(os.Getenv("LOG_TRACE")) {
	case "1", "true", "on", "yes":
		return true
	}
	return sampler.allow()
}

// Component returns L scoped to name.
func Component(name string) *slog.Logger {
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// LogEvent writes an event line through logg, or the context logger when logg is nil.
func LogEvent(ctx context.Context, logg *slog.Logger, lvl slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, lvl, "", attrs...)
}

// Event writes an event line for component.
func Event(ctx context.Context, component string, lvl slog.Level, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), lvl, event, attrs...)
}

// Debug writes a debug event for component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

// Info writes an info event for component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

// Warn writes a warning event for component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

// Error writes an error event for component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}
