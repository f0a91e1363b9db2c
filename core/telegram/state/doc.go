// Package state provides a lightweight FSM/session manager for Telegram bots.
// Sessions are keyed by chat, live only in memory and are serialised per key.
package state
