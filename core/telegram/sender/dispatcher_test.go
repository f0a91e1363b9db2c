package sender

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestKeepsOrderWithinChat(t *testing.T) {
	d := NewDispatcher(Options{Lanes: 4})
	var (
		mu   sync.Mutex
		seen = map[int64][]int{}
	)
	for i := 0; i < 40; i++ {
		for _, chat := range []int64{1, 2, -1003} {
			i, chat := i, chat
			require.NoError(t, d.Enqueue(context.Background(), chat, "send.text", func() error {
				mu.Lock()
				seen[chat] = append(seen[chat], i)
				mu.Unlock()
				return nil
			}))
		}
	}
	d.Close()

	for _, chat := range []int64{1, 2, -1003} {
		require.Len(t, seen[chat], 40)
		for i, v := range seen[chat] {
			assert.Equal(t, i, v)
		}
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	d := NewDispatcher(Options{Lanes: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), 7, "send.text", func() error {
		if calls.Add(1) == 1 {
			return timeoutErr{}
		}
		return nil
	}))
	d.Close()

	assert.EqualValues(t, 2, calls.Load())
	assert.Zero(t, d.Failed())
}

func TestGivesUpOnPermanentFailure(t *testing.T) {
	d := NewDispatcher(Options{Lanes: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), 7, "send.text", func() error {
		calls.Add(1)
		return errors.New("telegram: bad request: chat not found (400)")
	}))
	d.Close()

	assert.EqualValues(t, 1, calls.Load())
	assert.EqualValues(t, 1, d.Failed())
}

func TestEnqueueAfterClose(t *testing.T) {
	d := NewDispatcher(Options{})
	d.Close()
	d.Close()
	err := d.Enqueue(context.Background(), 1, "send.text", func() error { return nil })
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, "timeout", classify(context.DeadlineExceeded))
	assert.Equal(t, "timeout", classify(timeoutErr{}))
	assert.Equal(t, "unknown", classify(errors.New("x")))
}
