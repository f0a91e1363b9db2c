package logger

import (
	"bufio"
	"io"
	"sync"
)

// lineWriter hands finished lines to a single goroutine that owns the sinks.
// Output is flushed whenever the queue drains, so bursts share one syscall.
type lineWriter struct {
	lines   chan []byte
	flushes chan chan error
	done    chan struct{}
	once    sync.Once
	out     *bufio.Writer

	mu  sync.Mutex
	err error
}

func newLineWriter(sinks []io.Writer, queue int) *lineWriter {
	if queue <= 0 {
		queue = 256
	}
	w := &lineWriter{
		lines:   make(chan []byte, queue),
		flushes: make(chan chan error),
		done:    make(chan struct{}),
		out:     bufio.NewWriterSize(io.MultiWriter(sinks...), 64*1024),
	}
	go w.run()
	return w
}

func (w *lineWriter) run() {
	defer close(w.done)
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				w.setErr(w.out.Flush())
				return
			}
			if _, err := w.out.Write(line); err != nil {
				w.setErr(err)
			}
			if len(w.lines) == 0 {
				w.setErr(w.out.Flush())
			}
		case ack := <-w.flushes:
			ack <- w.out.Flush()
		}
	}
}

// write queues a copy of line. It blocks when the queue is full rather than drop output.
func (w *lineWriter) write(line []byte) error {
	if err := w.firstErr(); err != nil {
		return err
	}
	w.lines <- append([]byte(nil), line...)
	return nil
}

// Flush waits until everything queued so far reached the sinks.
func (w *lineWriter) Flush() error {
	select {
	case <-w.done:
		return w.firstErr()
	default:
	}
	ack := make(chan error, 1)
	w.flushes <- ack
	return <-ack
}

// Close drains the queue and stops the writer goroutine.
func (w *lineWriter) Close() error {
	w.once.Do(func() { close(w.lines) })
	<-w.done
	return w.firstErr()
}

func (w *lineWriter) firstErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *lineWriter) setErr(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}
