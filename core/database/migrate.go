package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/m3rciful/surveybot/core/logger"
	"github.com/m3rciful/surveybot/migrations"
)

const readyTimeout = 30 * time.Second

// RunMigrations waits for the database and applies every pending up migration.
func RunMigrations(cfg Config) error {
	if err := cfg.Normalize(); err != nil {
		return fmt.Errorf("db config: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	defer cancel()
	if err := WaitForDatabase(ctx, cfg); err != nil {
		logger.LogEvent(ctx, logger.MIG, slog.LevelError, "db.migrate", slog.String("err", err.Error()))
		return err
	}

	dir, origin, err := migrationSource(cfg)
	if err != nil {
		return err
	}
	files := upFiles(dir)
	logger.MIG.Debug("migrations resolved",
		slog.String("event", "resolve"),
		slog.String("source", origin),
		slog.Int("files_total", len(files)),
	)

	src, err := iofs.New(dir, ".")
	if err != nil {
		return fmt.Errorf("open migrations %s: %w", origin, err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, cfg.MigrateURL())
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	from, _, _ := m.Version()
	start := time.Now()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.MIG.Error("migration failed",
			slog.String("event", "apply"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("apply migrations: %w", err)
	}
	to, _, _ := m.Version()

	applied := appliedBetween(files, uint64(from), uint64(to))
	attrs := []any{
		slog.String("event", "summary"),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("files", len(applied)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	}
	if preview, truncated := logger.SummarizeStrings(applied, 6); preview != "" {
		attrs = append(attrs, slog.String("files_preview", preview), slog.Bool("files_truncated", truncated))
	}
	logger.MIG.Info("migrations summary", attrs...)
	return nil
}

// migrationSource returns the driver's migration files, embedded unless
// MigrationsDir points at a directory on disk.
func migrationSource(cfg Config) (fs.FS, string, error) {
	if cfg.MigrationsDir != "" {
		dir, err := filepath.Abs(filepath.Join(cfg.MigrationsDir, cfg.Driver))
		if err != nil {
			return nil, "", fmt.Errorf("resolve migrations dir: %w", err)
		}
		return os.DirFS(dir), dir, nil
	}
	sub, err := fs.Sub(migrations.FS, cfg.Driver)
	if err != nil {
		return nil, "", fmt.Errorf("embedded migrations for %s: %w", cfg.Driver, err)
	}
	return sub, "embedded:" + cfg.Driver, nil
}

func upFiles(dir fs.FS) []string {
	names, _ := fs.Glob(dir, "*.up.sql")
	return names
}

// appliedBetween picks the files with versions in (from, to]. Names start with the version.
func appliedBetween(files []string, from, to uint64) []string {
	var out []string
	for _, name := range files {
		var v uint64
		if _, err := fmt.Sscanf(strings.SplitN(name, "_", 2)[0], "%d", &v); err != nil {
			continue
		}
		if v > from && v <= to {
			out = append(out, name)
		}
	}
	return out
}
