// Package bot binds the survey conversations and the information menu to
// Telegram: it registers commands and callbacks, turns updates into dialog
// events and dialog replies into messages.
package bot

import (
	"context"
	"errors"
	"time"

	tg "github.com/m3rciful/surveybot/core/telegram"
	"github.com/m3rciful/surveybot/core/telegram/state"
	"github.com/m3rciful/surveybot/internal/allowlist"
	"github.com/m3rciful/surveybot/internal/backend"
	"github.com/m3rciful/surveybot/internal/dialog"

	tele "gopkg.in/telebot.v4"
)

// API is the backend surface the bot needs beyond the conversations.
type API interface {
	dialog.Backend
	VerifyToken(ctx context.Context, token string, chatID int64) (string, error)
	Stats(ctx context.Context) (*backend.Stats, error)
	Mailing(ctx context.Context, id int64) (*backend.Mailing, error)
	TaskLog(ctx context.Context, id int64) ([]backend.TaskLogEntry, error)
	FeedbackCount(ctx context.Context, id int64) (int, error)
	EmailTemplate(ctx context.Context) (string, error)
}

// Users is the allow-list the bot reads and grants access through.
type Users interface {
	Allow(ctx context.Context, chatID int64, email string) error
	IsAllowed(ctx context.Context, chatID int64) (bool, error)
	List(ctx context.Context) ([]allowlist.Entry, error)
}

// Bot holds the handlers.
type Bot struct {
	engine   *dialog.Engine
	sessions state.Manager
	api      API
	users    Users
	loc      *time.Location
}

// New builds the handler set.
func New(engine *dialog.Engine, sessions state.Manager, api API, users Users, loc *time.Location) *Bot {
	if loc == nil {
		loc = time.Local
	}
	return &Bot{engine: engine, sessions: sessions, api: api, users: users, loc: loc}
}

// Callback keys of the menus. Dialog button keys come from dialog.Actions.
const (
	cbSetupMailing = "setup_mailing"
	cbSetupAccount = "setup_account"

	cbInfoStats     = "info_stats"
	cbInfoQuestions = "info_questions"
	cbInfoMailings  = "info_mailings"
	cbInfoTemplate  = "info_template"
	cbInfoMailing   = "info_mailing"
	cbInfoTaskLog   = "info_tasklog"
	cbInfoCount     = "info_count"
	cbInfoCancel    = "info_cancel"
)

// Register wires commands, callbacks and flow handlers.
func (b *Bot) Register(reg *tg.Registry) error {
	cmds := []tg.Command{
		{Name: "/start", Handler: b.onStart, Description: "👋 Start", Hidden: true},
		{Name: "/setup", Handler: b.onSetup, Description: "🔧 Survey settings"},
		{Name: "/upload", Handler: b.onUpload, Description: "📦 Upload or export data"},
		{Name: "/information", Handler: b.onInformation, Description: "ℹ️ Survey information", Aliases: []string{"info"}},
		{Name: "/cancel", Handler: b.onCancel, Description: "❌ Cancel the current action"},
		{Name: "/users", Handler: b.onUsers, Description: "👥 Allowed chats", AdminOnly: true},
	}
	var errs []error
	for _, cmd := range cmds {
		errs = append(errs, reg.RegisterCommand(cmd))
	}

	cbs := map[string]tele.HandlerFunc{
		cbSetupMailing:  b.onSetupMailing,
		cbSetupAccount:  b.onSetupAccount,
		cbInfoStats:     b.onInfoStats,
		cbInfoQuestions: b.onInfoQuestions,
		cbInfoMailings:  b.onInfoMailings,
		cbInfoTemplate:  b.onInfoTemplate,
		cbInfoMailing:   b.onInfoMailing,
		cbInfoTaskLog:   b.onInfoTaskLog,
		cbInfoCount:     b.onInfoCount,
		cbInfoCancel:    b.onInfoCancel,
	}
	for _, action := range dialog.Actions {
		cbs[action] = b.onAction
	}
	for key, h := range cbs {
		errs = append(errs, reg.RegisterCallback(key, h))
	}

	for _, st := range dialog.States {
		b.sessions.RegisterHandler(st, b.onMessage)
	}
	return errors.Join(errs...)
}

// Fallbacks answers input no command, callback or flow claims.
func (b *Bot) Fallbacks(adminID int64) tg.RouteOptions {
	return tg.RouteOptions{
		AdminID:         adminID,
		OnAdminReject:   b.reply("This command is for the administrator only."),
		UnknownText:     b.reply(msgUnknownText),
		UnknownDocument: b.reply("To upload a file, start with /upload."),
		UnknownCallback: b.reply(msgStale),
	}
}

func (b *Bot) reply(text string) tele.HandlerFunc {
	return func(c tele.Context) error {
		return b.send(c, []dialog.Reply{{Text: text}})
	}
}

// Denied answers chats the access gate refused.
func (b *Bot) Denied() tele.HandlerFunc {
	return b.reply(msgDenied)
}

const (
	msgDenied      = "❌ You do not have access to this bot."
	msgStale       = "This action is out of date."
	msgUnknownText = "Unknown command. Use /setup, /upload or /information."
	msgWelcome     = "👋 <b>Welcome!</b>\n\n" +
		"This bot manages surveys and uploads data to the system:\n\n" +
		"⚙️ /setup — survey settings\n" +
		"📂 /upload — upload data\n" +
		"ℹ️ /information — current survey information\n\n" +
		"Pick a command from the menu or type it."
)
