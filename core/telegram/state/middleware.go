package state

import tele "gopkg.in/telebot.v4"

// Serialize runs at most one handler at a time per session key, so that a
// conversation never observes two of its own events interleaved.
func Serialize(mgr Manager) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			unlock := mgr.Lock(KeyOf(c))
			defer unlock()
			return next(c)
		}
	}
}
