package database

import (
	"strings"
	"testing"
)

func TestNormalizeDefaultsToSQLite(t *testing.T) {
	cfg := Config{}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Driver != DriverSQLite {
		t.Fatalf("driver = %q, want %q", cfg.Driver, DriverSQLite)
	}
	if cfg.Path != "bot_database.db" {
		t.Fatalf("path = %q", cfg.Path)
	}
	if cfg.MaxConnections != 1 {
		t.Fatalf("sqlite pool = %d, want 1", cfg.MaxConnections)
	}
	if got := cfg.MigrateURL(); got != "sqlite3://bot_database.db" {
		t.Fatalf("migrate url = %q", got)
	}
	if !strings.HasPrefix(cfg.DSN(), "file:bot_database.db?") {
		t.Fatalf("dsn = %q", cfg.DSN())
	}
}

func TestNormalizePostgres(t *testing.T) {
	cfg := Config{Driver: "PostgreSQL", Host: "db", User: "bot", Password: "p@ss", Name: "survey"}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Driver != DriverPostgres || cfg.Port != "5432" || cfg.SSLMode != "disable" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	want := "postgres://bot:p%40ss@db:5432/survey?sslmode=disable"
	if got := cfg.MigrateURL(); got != want {
		t.Fatalf("migrate url = %q, want %q", got, want)
	}
	if cfg.Target() != "db:5432/survey" {
		t.Fatalf("target = %q", cfg.Target())
	}
}

func TestNormalizeRejectsUnknownDriver(t *testing.T) {
	cfg := Config{Driver: "mysql"}
	if err := cfg.Normalize(); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	pg := Config{Driver: DriverPostgres}
	if err := pg.Normalize(); err == nil {
		t.Fatal("expected error for postgres without host")
	}
}

func TestCountApplied(t *testing.T) {
	files := []string{"000001_create_users.up.sql", "000002_add_index.up.sql", "000003_more.up.sql"}
	if got := countApplied(files, 1, 3); got != 2 {
		t.Fatalf("countApplied = %d, want 2", got)
	}
	if got := countApplied(files, 3, 3); got != 0 {
		t.Fatalf("countApplied no-op = %d", got)
	}
	applied := selectApplied(files, 0, 1)
	if len(applied) != 1 || applied[0] != files[0] {
		t.Fatalf("selectApplied = %v", applied)
	}
}
