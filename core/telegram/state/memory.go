package state

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/surveybot/core/logger"
	"github.com/m3rciful/surveybot/core/metrics"
	tghelpers "github.com/m3rciful/surveybot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

type keyLock struct {
	mu   sync.Mutex
	refs int
}

type memoryManager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	now      func() time.Time

	locksMu sync.Mutex
	locks   map[int64]*keyLock

	handlersMu sync.RWMutex
	handlers   map[State]tele.HandlerFunc
}

// NewMemoryManager constructs an in-memory Manager. Sessions never outlive the process.
func NewMemoryManager() Manager {
	return newMemoryManager(time.Now)
}

func newMemoryManager(now func() time.Time) *memoryManager {
	return &memoryManager{
		sessions: make(map[int64]*Session),
		locks:    make(map[int64]*keyLock),
		handlers: make(map[State]tele.HandlerFunc),
		now:      now,
	}
}

// session returns the session for key, creating it. Caller must hold m.mu.
func (m *memoryManager) session(key int64) *Session {
	sess, ok := m.sessions[key]
	if !ok {
		sess = &Session{State: StateIdle, TempData: make(map[string]any)}
		m.sessions[key] = sess
		metrics.ActiveSessions.Set(float64(len(m.sessions)))
	}
	sess.UpdatedAt = m.now()
	return sess
}

// SetTemp stores a temporary key/value pair for the given session.
func (m *memoryManager) SetTemp(key int64, name string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session(key).TempData[name] = value
}

// GetTemp retrieves a temporary value by name for the given session.
func (m *memoryManager) GetTemp(key int64, name string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[key]
	if !ok {
		return nil, false
	}
	val, ok := sess.TempData[name]
	return val, ok
}

// ClearTemp removes a temporary key/value pair for the given session.
func (m *memoryManager) ClearTemp(key int64, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[key]; ok {
		delete(sess.TempData, name)
	}
}

// Clear removes the entire session.
func (m *memoryManager) Clear(key int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, key)
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
}

// SetState sets the FSM state for the given session.
func (m *memoryManager) SetState(key int64, st State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session(key).State = st
}

// GetState returns the current FSM state, or StateIdle if none exists.
func (m *memoryManager) GetState(key int64) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sess, ok := m.sessions[key]; ok {
		return sess.State
	}
	return StateIdle
}

// HasState checks if a session has an active state other than idle.
func (m *memoryManager) HasState(key int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[key]
	return ok && sess.State != StateIdle
}

// InProgress reports whether the session currently has an active FSM state.
func (m *memoryManager) InProgress(key int64) bool {
	return m.HasState(key)
}

// Lock serialises work for one session key. The returned func releases it.
func (m *memoryManager) Lock(key int64) func() {
	m.locksMu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{}
		m.locks[key] = l
	}
	l.refs++
	m.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, key)
		}
		m.locksMu.Unlock()
	}
}

// Sweep drops sessions untouched for longer than idle and returns how many were removed.
func (m *memoryManager) Sweep(idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	cutoff := m.now().Add(-idle)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, sess := range m.sessions {
		if sess.UpdatedAt.Before(cutoff) {
			delete(m.sessions, key)
			removed++
		}
	}
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	return removed
}

// Len reports how many sessions are held.
func (m *memoryManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// RegisterHandler associates a state with its handler.
func (m *memoryManager) RegisterHandler(st State, h tele.HandlerFunc) {
	if h == nil {
		return
	}
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.handlers[st] = h
}

// ManagerHandler executes the handler registered for the session's current state, if any.
func (m *memoryManager) ManagerHandler(c tele.Context) error {
	key := KeyOf(c)
	current := m.GetState(key)
	ctx := tghelpers.BuildContext(c)
	logger.Debug(ctx, "tg", "fsm.manager",
		slog.String("status", "ok"),
		slog.Int64("chat_id", key),
		slog.String("state", string(current)),
	)

	m.handlersMu.RLock()
	handler, ok := m.handlers[current]
	m.handlersMu.RUnlock()
	if ok {
		return handler(c)
	}
	return nil
}
