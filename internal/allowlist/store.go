// Package allowlist keeps the chats permitted to operate the bot.
package allowlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/surveybot/core/logger"
)

// ErrNotFound is returned when a chat has no allow-list entry.
var ErrNotFound = errors.New("allowlist: entry not found")

// Entry is one allow-list row.
type Entry struct {
	ChatID    int64     `db:"chat_id"`
	Email     string    `db:"email"`
	Allowed   bool      `db:"is_allowed"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Store persists the allow-list through sqlx. Queries are written with '?'
// placeholders and rebound for the connected driver.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const (
	upsertSQL = `INSERT INTO users (chat_id, email, is_allowed, updated_at)
VALUES (?, ?, TRUE, CURRENT_TIMESTAMP)
ON CONFLICT (chat_id) DO UPDATE SET email = excluded.email, is_allowed = TRUE, updated_at = CURRENT_TIMESTAMP`
	revokeSQL  = `UPDATE users SET is_allowed = FALSE, updated_at = CURRENT_TIMESTAMP WHERE chat_id = ?`
	allowedSQL = `SELECT is_allowed FROM users WHERE chat_id = ?`
	getSQL     = `SELECT chat_id, email, is_allowed, updated_at FROM users WHERE chat_id = ?`
	listSQL    = `SELECT chat_id, email, is_allowed, updated_at FROM users ORDER BY chat_id`
)

// Allow grants access to chatID, recording the verified email.
func (s *Store) Allow(ctx context.Context, chatID int64, email string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(upsertSQL), chatID, email); err != nil {
		return fmt.Errorf("allowlist allow %d: %w", chatID, err)
	}
	logger.Info(ctx, "access", "allowlist.allow",
		slog.Int64("chat_id", chatID),
		slog.String("email", email),
	)
	return nil
}

// Revoke withdraws access from chatID. Unknown chats yield ErrNotFound.
func (s *Store) Revoke(ctx context.Context, chatID int64) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(revokeSQL), chatID)
	if err != nil {
		return fmt.Errorf("allowlist revoke %d: %w", chatID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	logger.Info(ctx, "access", "allowlist.revoke", slog.Int64("chat_id", chatID))
	return nil
}

// IsAllowed reports whether chatID may use the bot. Unknown chats are not allowed.
func (s *Store) IsAllowed(ctx context.Context, chatID int64) (bool, error) {
	var allowed bool
	err := s.db.GetContext(ctx, &allowed, s.db.Rebind(allowedSQL), chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("allowlist lookup %d: %w", chatID, err)
	}
	return allowed, nil
}

// Get returns the entry of chatID.
func (s *Store) Get(ctx context.Context, chatID int64) (Entry, error) {
	var e Entry
	err := s.db.GetContext(ctx, &e, s.db.Rebind(getSQL), chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("allowlist get %d: %w", chatID, err)
	}
	return e, nil
}

// List returns every entry ordered by chat id.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	var out []Entry
	if err := s.db.SelectContext(ctx, &out, listSQL); err != nil {
		return nil, fmt.Errorf("allowlist list: %w", err)
	}
	return out, nil
}
