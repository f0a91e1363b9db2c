package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func noop(tele.Context) error { return nil }

func TestRegisterCommand(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterCommand(Command{Name: "/setup", Handler: noop, Description: "Settings"}))
	require.NoError(t, reg.RegisterCommand(Command{Name: "/information", Handler: noop, Description: "Info", Aliases: []string{"info"}}))
	require.NoError(t, reg.RegisterCommand(Command{Name: "/start", Handler: noop, Description: "Start", Hidden: true}))
	require.NoError(t, reg.RegisterCommand(Command{Name: "/users", Handler: noop, Description: "Users", AdminOnly: true}))

	assert.Error(t, reg.RegisterCommand(Command{Name: "/info", Handler: noop, Description: "dup alias"}))
	assert.Error(t, reg.RegisterCommand(Command{Name: "upload", Handler: noop, Description: "no slash"}))
	assert.Error(t, reg.RegisterCommand(Command{Name: "/upload", Description: "no handler"}))

	assert.Equal(t, []tele.Command{
		{Text: "setup", Description: "Settings"},
		{Text: "information", Description: "Info"},
	}, reg.Menu())
	assert.Equal(t, []string{"/information", "/info"}, reg.Commands()[1].Endpoints())
}

func TestRegisterCallback(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterCallback("preview_next", noop))
	require.NoError(t, reg.RegisterCallback("mail_start", noop))
	assert.Error(t, reg.RegisterCallback("mail_start", noop))
	assert.Error(t, reg.RegisterCallback("", noop))

	_, ok := reg.Callback("mail_start")
	assert.True(t, ok)
	_, ok = reg.Callback("nope")
	assert.False(t, ok)
	assert.Equal(t, []string{"mail_start", "preview_next"}, reg.CallbackKeys())
}
