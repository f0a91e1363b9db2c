package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/m3rciful/surveybot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// Command is a slash command with its menu entry.
type Command struct {
	Name        string
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly commands are rejected for everyone but telegram.admin_id.
	AdminOnly bool
	// Hidden commands work but stay out of the Telegram menu.
	Hidden  bool
	Aliases []string
}

// Endpoints returns the name and every alias in slash form.
func (c Command) Endpoints() []string {
	out := []string{c.Name}
	for _, a := range c.Aliases {
		if !strings.HasPrefix(a, "/") {
			a = "/" + a
		}
		out = append(out, a)
	}
	return out
}

// Registry holds the commands and callback handlers of a bot.
type Registry struct {
	mu        sync.RWMutex
	commands  []Command
	endpoints map[string]struct{}
	callbacks map[string]tele.HandlerFunc
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		endpoints: make(map[string]struct{}),
		callbacks: make(map[string]tele.HandlerFunc),
	}
}

// RegisterCommand adds cmd. Names and aliases must be unique across commands.
func (r *Registry) RegisterCommand(cmd Command) error {
	if cmd.Handler == nil || cmd.Description == "" || !strings.HasPrefix(cmd.Name, "/") {
		return fmt.Errorf("invalid command %q", cmd.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ep := range cmd.Endpoints() {
		if _, dup := r.endpoints[ep]; dup {
			return fmt.Errorf("command already registered: %s", ep)
		}
	}
	for _, ep := range cmd.Endpoints() {
		r.endpoints[ep] = struct{}{}
	}
	r.commands = append(r.commands, cmd)
	return nil
}

// Commands returns the commands in registration order.
func (r *Registry) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Command(nil), r.commands...)
}

// Menu lists the commands shown in the Telegram command menu.
func (r *Registry) Menu() []tele.Command {
	var menu []tele.Command
	for _, cmd := range r.Commands() {
		if cmd.Hidden || cmd.AdminOnly {
			continue
		}
		menu = append(menu, tele.Command{Text: strings.TrimPrefix(cmd.Name, "/"), Description: cmd.Description})
	}
	return menu
}

// RegisterCallback maps a callback unique to its handler.
func (r *Registry) RegisterCallback(key string, h tele.HandlerFunc) error {
	if key == "" || h == nil {
		return fmt.Errorf("invalid callback %q", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.callbacks[key]; dup {
		return fmt.Errorf("callback already registered: %s", key)
	}
	r.callbacks[key] = h
	return nil
}

// Callback returns the handler registered for key.
func (r *Registry) Callback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// CallbackKeys returns the registered uniques, sorted.
func (r *Registry) CallbackKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PublishMenu sets the bot's command menu. Failure is logged, not fatal.
func PublishMenu(ctx context.Context, bot *tele.Bot, reg *Registry) {
	menu := reg.Menu()
	if err := bot.SetCommands(menu); err != nil {
		logger.LogEvent(ctx, logger.TWire, slog.LevelWarn, "menu.publish_failed",
			slog.String("err", err.Error()),
		)
		return
	}
	logger.LogEvent(ctx, logger.TWire, slog.LevelInfo, "menu.published",
		slog.Int("commands", len(menu)),
	)
}
