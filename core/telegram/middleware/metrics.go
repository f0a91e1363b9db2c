package middleware

import tele "gopkg.in/telebot.v4"

const countersSlot = "surveybot.replies"

// Replies counts what a handler sent back for one update.
type Replies struct {
	Messages int
	Keyboard bool
}

// countingContext records every successful outbound call in the update's Replies.
type countingContext struct {
	tele.Context
	r *Replies
}

func (c countingContext) track(err error, opts []interface{}) error {
	if err != nil {
		return err
	}
	c.r.Messages++
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			c.r.Keyboard = c.r.Keyboard || (v != nil && v.ReplyMarkup != nil)
		case *tele.ReplyMarkup:
			c.r.Keyboard = c.r.Keyboard || v != nil
		}
	}
	return nil
}

func (c countingContext) Send(what interface{}, opts ...interface{}) error {
	return c.track(c.Context.Send(what, opts...), opts)
}

func (c countingContext) Reply(what interface{}, opts ...interface{}) error {
	return c.track(c.Context.Reply(what, opts...), opts)
}

func (c countingContext) Edit(what interface{}, opts ...interface{}) error {
	return c.track(c.Context.Edit(what, opts...), opts)
}

func (c countingContext) EditOrSend(what interface{}, opts ...interface{}) error {
	return c.track(c.Context.EditOrSend(what, opts...), opts)
}

func (c countingContext) EditOrReply(what interface{}, opts ...interface{}) error {
	return c.track(c.Context.EditOrReply(what, opts...), opts)
}

// CountReplies wraps the context so handler summaries can report replies.
func CountReplies(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		r := &Replies{}
		c.Set(countersSlot, r)
		return next(countingContext{Context: c, r: r})
	}
}

// RepliesOf returns the counters of the update, zero when not counted.
// Queued sends land after the handler returns and are not included.
func RepliesOf(c tele.Context) Replies {
	if r, ok := c.Get(countersSlot).(*Replies); ok {
		return *r
	}
	return Replies{}
}
