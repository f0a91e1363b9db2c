// Package sender runs outbound Telegram calls off the handler goroutine.
//
// Calls are spread over lanes by chat id: one chat always lands on the same
// lane, so its messages leave in the order they were produced while
// different chats are served in parallel.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/surveybot/core/logger"
	"github.com/m3rciful/surveybot/core/metrics"
	"github.com/m3rciful/surveybot/core/netutil"

	tele "gopkg.in/telebot.v4"
)

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("telegram sender: queue closed")

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// Options controls the dispatcher. Zero values get defaults.
type Options struct {
	Lanes        int
	QueueSize    int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent on one call including retries.
	MaxDuration time.Duration
}

func (o *Options) normalize() {
	if o.Lanes <= 0 {
		o.Lanes = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 15 * time.Second
	}
}

type job struct {
	ctx    context.Context
	action string
	run    func() error
}

// Dispatcher executes queued calls with bounded retries.
type Dispatcher struct {
	opts   Options
	lanes  []chan job
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	failed atomic.Uint64
}

// NewDispatcher starts one goroutine per lane.
func NewDispatcher(opts Options) *Dispatcher {
	opts.normalize()
	d := &Dispatcher{opts: opts, lanes: make([]chan job, opts.Lanes)}
	for i := range d.lanes {
		d.lanes[i] = make(chan job, opts.QueueSize)
		d.wg.Add(1)
		go d.drain(d.lanes[i])
	}
	return d
}

// Enqueue queues run on the lane of chatID. It blocks while the lane is full.
func (d *Dispatcher) Enqueue(ctx context.Context, chatID int64, action string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	lane := d.lanes[uint64(chatID)%uint64(len(d.lanes))]
	select {
	case lane <- job{ctx: ctx, action: action, run: run}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Failed returns how many calls gave up.
func (d *Dispatcher) Failed() uint64 {
	return d.failed.Load()
}

// Close stops accepting calls and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, lane := range d.lanes {
		close(lane)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) drain(lane <-chan job) {
	defer d.wg.Done()
	for j := range lane {
		d.execute(j)
	}
}

func (d *Dispatcher) execute(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := d.opts.MaxRetries + 1
	var err error
loop:
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = j.run(); err == nil {
			if attempt > 1 {
				logger.Info(j.ctx, "tg.sender", "send.recovered",
					slog.String("action", j.action),
					slog.Int("attempts", attempt),
					slog.Duration("duration", time.Since(start)),
				)
			}
			return
		}
		wait, retry := d.backoff(err, attempt)
		if !retry || attempt == attempts {
			break
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			err = errors.Join(err, ctx.Err())
			break loop
		case <-t.C:
		}
	}

	d.failed.Add(1)
	kind := classify(err)
	metrics.SendFailures.WithLabelValues(kind).Inc()
	logger.Error(j.ctx, "tg.sender", "send.fail",
		slog.String("action", j.action),
		slog.String("err", tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")),
		slog.String("err_code", kind),
		slog.Duration("duration", time.Since(start)),
	)
}

// backoff decides whether err is worth another attempt and how long to wait.
// Flood control errors carry their own wait.
func (d *Dispatcher) backoff(err error, attempt int) (time.Duration, bool) {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return time.Duration(flood.RetryAfter) * time.Second, true
	}
	if netutil.ShouldRetry(err) {
		return d.opts.RetryBackoff * time.Duration(attempt), true
	}
	return 0, false
}

func classify(err error) string {
	var (
		flood  tele.FloodError
		apiErr *tele.Error
		netErr net.Error
		opErr  *net.OpError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &flood):
		return "flood"
	case errors.As(err, &apiErr):
		if apiErr.Code >= 500 {
			return "http_5xx"
		}
		return "http_4xx"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return "dial"
	default:
		return "unknown"
	}
}
