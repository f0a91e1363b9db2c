package telegram

import (
	"log/slog"
	"time"

	"github.com/m3rciful/surveybot/core/logger"
	"github.com/m3rciful/surveybot/core/telegram/callbacks"
	"github.com/m3rciful/surveybot/core/telegram/middleware"
	"github.com/m3rciful/surveybot/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// Route binds a handler to a telebot endpoint.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// Flows routes free input of chats that are inside a conversation.
type Flows interface {
	InProgress(key int64) bool
	ManagerHandler(c tele.Context) error
}

// RouteOptions holds the admin id and the answers for input nothing claims.
type RouteOptions struct {
	AdminID         int64
	OnAdminReject   tele.HandlerFunc
	UnknownText     tele.HandlerFunc
	UnknownDocument tele.HandlerFunc
	UnknownCallback tele.HandlerFunc
}

// Routes builds the endpoint table: every command and alias, one callback
// dispatcher over the registry, and text/document routes that prefer an
// active flow over the fallbacks.
func Routes(reg *Registry, flows Flows, opts RouteOptions) []Route {
	admin := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminID:  opts.AdminID,
		OnReject: opts.OnAdminReject,
	})

	var routes []Route
	for _, cmd := range reg.Commands() {
		h := summarized(handlerName(cmd.Name), cmd.Handler)
		if cmd.AdminOnly {
			h = admin(h)
		}
		for _, ep := range cmd.Endpoints() {
			routes = append(routes, Route{Endpoint: ep, Handler: h})
		}
	}

	routes = append(routes,
		Route{Endpoint: tele.OnCallback, Handler: callbackRoute(reg, opts.UnknownCallback)},
		Route{Endpoint: tele.OnText, Handler: inputRoute(flows, "text", opts.UnknownText)},
		Route{Endpoint: tele.OnDocument, Handler: inputRoute(flows, "document", opts.UnknownDocument)},
	)

	logger.TWire.Info("routes wired",
		slog.String("event", "routes.wired"),
		slog.Int("commands", len(reg.Commands())),
		slog.Int("callbacks", len(reg.CallbackKeys())),
		slog.Int("routes", len(routes)),
	)
	return routes
}

func callbackRoute(reg *Registry, notFound tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		start := time.Now()
		key := callbacks.CallbackKey(c)
		// Stop the client spinner; handlers answer with messages, not alerts.
		_ = c.Respond()

		h, ok := reg.Callback(key)
		if !ok {
			return run(c, "callback.unknown", start, notFound, slog.String("cb_key", key))
		}
		return run(c, "callback."+handlerName(key), start, h, slog.String("cb_key", key))
	}
}

func inputRoute(flows Flows, kind string, fallback tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		start := time.Now()
		if flows != nil && flows.InProgress(state.KeyOf(c)) {
			return run(c, "flow."+kind, start, flows.ManagerHandler)
		}
		return run(c, "unknown."+kind, start, fallback)
	}
}

func summarized(name string, h tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		return run(c, name, time.Now(), h)
	}
}
