package dialog

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/m3rciful/surveybot/core/logger"
	"github.com/m3rciful/surveybot/core/telegram/state"
	"github.com/m3rciful/surveybot/internal/backend"
)

// BeginTestAccount starts the test account flow.
func (e *Engine) BeginTestAccount(ctx context.Context, chatID int64) []Reply {
	e.begin(ctx, chatID, StateAwaitingEmail)
	return []Reply{{Text: "Enter the email of the test account:"}}
}

// ValidEmail accepts any input containing both "@" and ".".
func ValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	return strings.Contains(s, "@") && strings.Contains(s, ".")
}

// SplitFullName splits "Last First [Middle...]" into last and first name.
func SplitFullName(s string) (last, first string, ok bool) {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return "", "", false
	}
	return fields[0], strings.Join(fields[1:], " "), true
}

func (e *Engine) onEmail(ctx context.Context, chatID int64, ev Event) []Reply {
	if ev.Kind == KindCallback {
		return stale()
	}
	email := strings.TrimSpace(ev.Text)
	if !ValidEmail(email) {
		return []Reply{{Text: "That does not look like an email address. Try again:"}}
	}
	e.sessions.SetTemp(chatID, keyEmail, email)
	e.transition(ctx, chatID, StateAwaitingFullName)
	return []Reply{{Text: "Enter the last and first name, separated by a space:"}}
}

func (e *Engine) onFullName(ctx context.Context, chatID int64, ev Event) []Reply {
	if ev.Kind == KindCallback {
		return stale()
	}
	last, first, ok := SplitFullName(ev.Text)
	if !ok {
		return []Reply{{Text: "Please send both the last and first name, e.g. \"Ivanov Ivan\":"}}
	}
	email, _ := state.Temp[string](e.sessions, chatID, keyEmail)
	if email == "" {
		e.finish(ctx, chatID)
		return []Reply{{Text: "The email was lost. Run the command again."}}
	}

	err := e.api.CreateTestAccount(ctx, backend.TestAccount{Email: email, FirstName: first, LastName: last})
	e.finish(ctx, chatID)
	switch {
	case err == nil:
		return []Reply{{Text: "✅ Test account " + email + " created."}}
	case errors.Is(err, backend.ErrAccountExists):
		return []Reply{{Text: "ℹ️ Test account " + email + " already exists."}}
	default:
		logger.Warn(ctx, "dialog", "account.create_failed",
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
		return []Reply{{Text: "❌ Failed to create the test account: " + reason(err)}}
	}
}
