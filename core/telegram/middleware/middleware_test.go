package middleware

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func TestRecoverReturnsError(t *testing.T) {
	h := Recover(func(tele.Context) error { panic("boom") })
	err := h(messageContext(1, "/setup"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	plain := errors.New("plain")
	assert.Equal(t, plain, Recover(func(tele.Context) error { return plain })(messageContext(1, "x")))
}

func TestRateLimit(t *testing.T) {
	var passed, limited int
	h := RateLimit(RateLimitOptions{
		Interval:  time.Hour,
		Exclude:   map[string]bool{"callback": true},
		OnLimited: func(tele.Context) error { limited++; return nil },
	})(func(tele.Context) error { passed++; return nil })

	require.NoError(t, h(messageContext(1, "/setup")))
	require.NoError(t, h(messageContext(1, "/upload")))
	require.NoError(t, h(messageContext(2, "/setup")))

	assert.Equal(t, 2, passed)
	assert.Equal(t, 1, limited)
}

func TestUpdateKind(t *testing.T) {
	assert.Equal(t, "message", updateKind(messageContext(1, "hi")))
	doc := tele.NewContext(nil, tele.Update{Message: &tele.Message{Document: &tele.Document{FileName: "a.xlsx"}}})
	assert.Equal(t, "document", updateKind(doc))
	cb := tele.NewContext(nil, tele.Update{Callback: &tele.Callback{Data: "\fmail_start|2025-01-06"}})
	assert.Equal(t, "callback", updateKind(cb))
}

func TestRepliesOfWithoutCounting(t *testing.T) {
	assert.Equal(t, Replies{}, RepliesOf(messageContext(1, "x")))
}
