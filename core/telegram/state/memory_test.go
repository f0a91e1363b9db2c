package state

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSessionLifecycle(t *testing.T) {
	m := NewMemoryManager()
	const chat = int64(42)

	if m.InProgress(chat) {
		t.Fatal("fresh chat must be idle")
	}
	m.SetState(chat, State("mailing.awaiting_start"))
	m.SetTemp(chat, "page", 3)

	if got := m.GetState(chat); got != "mailing.awaiting_start" {
		t.Fatalf("state = %q", got)
	}
	page, ok := Temp[int](m, chat, "page")
	if !ok || page != 3 {
		t.Fatalf("page = %d, %v", page, ok)
	}
	if _, ok := Temp[string](m, chat, "page"); ok {
		t.Fatal("type mismatch must not assert")
	}

	m.Clear(chat)
	if _, ok := m.GetTemp(chat, "page"); ok {
		t.Fatal("Clear must drop data")
	}
	if m.Len() != 0 {
		t.Fatalf("len = %d", m.Len())
	}
}

func TestSweepDropsIdleSessions(t *testing.T) {
	now := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	m := newMemoryManager(func() time.Time { return now })

	m.SetState(1, "a")
	now = now.Add(90 * time.Minute)
	m.SetState(2, "b")

	if n := m.Sweep(time.Hour); n != 1 {
		t.Fatalf("swept = %d, want 1", n)
	}
	if m.InProgress(1) || !m.InProgress(2) {
		t.Fatal("wrong session evicted")
	}
	if n := m.Sweep(0); n != 0 {
		t.Fatal("zero ttl disables sweeping")
	}
}

func TestLockSerialisesPerKey(t *testing.T) {
	m := NewMemoryManager()
	var (
		wg      sync.WaitGroup
		inside  atomic.Int32
		overlap atomic.Bool
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock(7)
			defer unlock()
			if inside.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()
	if overlap.Load() {
		t.Fatal("two holders of the same key ran concurrently")
	}

	mm := m.(*memoryManager)
	mm.locksMu.Lock()
	defer mm.locksMu.Unlock()
	if len(mm.locks) != 0 {
		t.Fatalf("locks leaked: %d", len(mm.locks))
	}
}
