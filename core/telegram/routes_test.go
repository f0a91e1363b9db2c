package telegram

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

// respondless lets callback routes run without a bot behind the context.
type respondless struct{ tele.Context }

func (respondless) Respond(...*tele.CallbackResponse) error { return nil }

type fakeFlows struct {
	active  map[int64]bool
	handled int
}

func (f *fakeFlows) InProgress(key int64) bool { return f.active[key] }

func (f *fakeFlows) ManagerHandler(tele.Context) error {
	f.handled++
	return nil
}

func textUpdate(chatID int64, text string) tele.Context {
	return tele.NewContext(nil, tele.Update{Message: &tele.Message{
		Text:   text,
		Chat:   &tele.Chat{ID: chatID},
		Sender: &tele.User{ID: chatID},
	}})
}

func routeFor(t *testing.T, routes []Route, endpoint any) tele.HandlerFunc {
	t.Helper()
	for _, r := range routes {
		if r.Endpoint == endpoint {
			return r.Handler
		}
	}
	t.Fatalf("no route for %v", endpoint)
	return nil
}

func TestRoutesCommandsAndAliases(t *testing.T) {
	reg := NewRegistry()
	var calls int
	require.NoError(t, reg.RegisterCommand(Command{
		Name: "/information", Description: "Info", Aliases: []string{"info"},
		Handler: func(tele.Context) error { calls++; return nil },
	}))
	var rejected int
	require.NoError(t, reg.RegisterCommand(Command{
		Name: "/users", Description: "Users", AdminOnly: true,
		Handler: func(tele.Context) error { return errors.New("must not run") },
	}))

	routes := Routes(reg, nil, RouteOptions{
		AdminID:       99,
		OnAdminReject: func(tele.Context) error { rejected++; return nil },
	})

	require.NoError(t, routeFor(t, routes, "/information")(textUpdate(1, "/information")))
	require.NoError(t, routeFor(t, routes, "/info")(textUpdate(1, "/info")))
	assert.Equal(t, 2, calls)

	require.NoError(t, routeFor(t, routes, "/users")(textUpdate(1, "/users")))
	assert.Equal(t, 1, rejected)
}

func TestRoutesTextPrefersActiveFlow(t *testing.T) {
	flows := &fakeFlows{active: map[int64]bool{7: true}}
	var unknown int
	routes := Routes(NewRegistry(), flows, RouteOptions{
		UnknownText: func(tele.Context) error { unknown++; return nil },
	})
	text := routeFor(t, routes, tele.OnText)

	require.NoError(t, text(textUpdate(7, "2025-01-06")))
	require.NoError(t, text(textUpdate(8, "hello")))
	assert.Equal(t, 1, flows.handled)
	assert.Equal(t, 1, unknown)
}

func TestRoutesCallbackDispatch(t *testing.T) {
	reg := NewRegistry()
	var got string
	require.NoError(t, reg.RegisterCallback("mail_start", func(c tele.Context) error {
		got = c.Callback().Data
		return nil
	}))
	var unknown int
	routes := Routes(reg, nil, RouteOptions{
		UnknownCallback: func(tele.Context) error { unknown++; return nil },
	})
	cb := routeFor(t, routes, tele.OnCallback)

	press := func(data string) tele.Context {
		return respondless{tele.NewContext(nil, tele.Update{Callback: &tele.Callback{
			Data:   data,
			Sender: &tele.User{ID: 5},
		}})}
	}
	require.NoError(t, cb(press("\fmail_start|2025-01-06")))
	assert.Equal(t, "\fmail_start|2025-01-06", got)

	require.NoError(t, cb(press("\fgone|1")))
	assert.Equal(t, 1, unknown)
}

type codedErr struct{}

func (codedErr) Error() string { return "backend said no" }
func (codedErr) Code() string  { return "range overlap" }

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "RANGE_OVERLAP", errorCode(codedErr{}))
	assert.Equal(t, "RANGE_OVERLAP", errorCode(errors.Join(errors.New("wrapped"), codedErr{})))
	assert.Equal(t, "INTERNAL", errorCode(errors.New("plain")))
	assert.Equal(t, "setup", handlerName("/Setup"))
	assert.Equal(t, "unknown", handlerName(" "))
}
