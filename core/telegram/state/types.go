package state

import (
	"time"

	tele "gopkg.in/telebot.v4"
)

// State identifies a finite-state-machine step used in conversations.
type State string

const (
	// StateIdle indicates there is no active conversation with the user.
	StateIdle State = "idle"
)

// Session stores conversation state and temporary data for a chat.
type Session struct {
	State     State
	TempData  map[string]any
	UpdatedAt time.Time
}

// Manager orchestrates chat sessions and FSM state transitions.
type Manager interface {
	SetTemp(key int64, name string, value any)
	ClearTemp(key int64, name string)
	GetTemp(key int64, name string) (any, bool)
	Clear(key int64)

	// Dialog state
	SetState(key int64, st State)
	GetState(key int64) State
	HasState(key int64) bool

	InProgress(key int64) bool
	Lock(key int64) (unlock func())
	Sweep(idle time.Duration) int
	Len() int

	RegisterHandler(st State, h tele.HandlerFunc)
	ManagerHandler(c tele.Context) error
}

// Temp retrieves a temporary value and asserts it to T.
func Temp[T any](m Manager, key int64, name string) (T, bool) {
	var zero T
	raw, ok := m.GetTemp(key, name)
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// KeyOf returns the session key for an update: the chat id, or the sender id
// for updates that carry no chat.
func KeyOf(c tele.Context) int64 {
	if chat := c.Chat(); chat != nil {
		return chat.ID
	}
	if user := c.Sender(); user != nil {
		return user.ID
	}
	return 0
}
