package middleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"
)

type permitFunc func(chatID int64, text string) bool

func (f permitFunc) Permit(_ context.Context, chatID int64, text string) bool { return f(chatID, text) }

func messageContext(chatID int64, text string) tele.Context {
	return tele.NewContext(nil, tele.Update{ID: 1, Message: &tele.Message{
		Chat:   &tele.Chat{ID: chatID},
		Sender: &tele.User{ID: chatID},
		Text:   text,
	}})
}

func TestAccessGateMiddleware(t *testing.T) {
	gate := permitFunc(func(chatID int64, text string) bool { return chatID == 1 || text == "/start" })
	var reached, denied int
	h := AccessGateMiddleware(gate, func(tele.Context) error { denied++; return nil })(func(tele.Context) error {
		reached++
		return nil
	})

	assert.NoError(t, h(messageContext(1, "/setup")))
	assert.NoError(t, h(messageContext(2, "/start")))
	assert.NoError(t, h(messageContext(2, "/setup")))

	assert.Equal(t, 2, reached)
	assert.Equal(t, 1, denied)
}

func TestAdminOnlyMiddleware(t *testing.T) {
	var rejected bool
	h := AdminOnlyMiddleware(AdminOptions{AdminID: 7, OnReject: func(tele.Context) error {
		rejected = true
		return nil
	}})(func(tele.Context) error { return nil })

	assert.NoError(t, h(messageContext(7, "/users")))
	assert.False(t, rejected)
	assert.NoError(t, h(messageContext(8, "/users")))
	assert.True(t, rejected)
}
