package allowlist

import (
	"context"
	"log/slog"
	"strings"

	"github.com/m3rciful/surveybot/core/logger"
)

// EntryCommand is always let through so unknown chats can present a token.
const EntryCommand = "/start"

// Checker answers allow-list lookups.
type Checker interface {
	IsAllowed(ctx context.Context, chatID int64) (bool, error)
}

// Gate decides whether an update may reach the handlers.
type Gate struct {
	checker Checker
}

// NewGate builds a gate backed by checker.
func NewGate(checker Checker) *Gate {
	return &Gate{checker: checker}
}

// Permit reports whether an update from chatID carrying text may proceed.
// The entry command always passes; lookup failures deny.
func (g *Gate) Permit(ctx context.Context, chatID int64, text string) bool {
	if IsEntry(text) {
		return true
	}
	ok, err := g.checker.IsAllowed(ctx, chatID)
	if err != nil {
		logger.Error(ctx, "access", "allowlist.lookup_failed",
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
		return false
	}
	return ok
}

// IsEntry reports whether text invokes the entry command, with or without a
// bot mention or payload ("/start", "/start@bot", "/start TOKEN").
func IsEntry(text string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return cmd == EntryCommand
}
