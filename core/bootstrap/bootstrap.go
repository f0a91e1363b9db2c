// Package bootstrap brings up the process-wide infrastructure: logging,
// the schema and the database pool, in that order.
package bootstrap

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/surveybot/core/config"
	coredatabase "github.com/m3rciful/surveybot/core/database"
	"github.com/m3rciful/surveybot/core/logger"
)

// Options carries the configuration and optional replacements for each step.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config

	LoggerInit func(*coreconfig.Config) error
	Migrate    func(coredatabase.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
}

// Result is the infrastructure handed to the app.
type Result struct {
	DB *sqlx.DB
}

// Run initializes logging, migrates the schema and opens the pool.
// Migrating first waits for the database, so the pool opens against a ready server.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	initLogger, migrate, connect := opts.LoggerInit, opts.Migrate, opts.Connect
	if initLogger == nil {
		initLogger = logger.InitLogger
	}
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if connect == nil {
		connect = coredatabase.Connect
	}

	if err := initLogger(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	start := time.Now()
	if err := migrate(opts.Database); err != nil {
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}
	db, err := connect(opts.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	logger.DB.Info("storage ready",
		slog.String("event", "bootstrap.storage"),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return &Result{DB: db}, nil
}
