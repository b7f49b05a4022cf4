package main

import (
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/brandsync/brandsync-api/internal/config"
	"github.com/brandsync/brandsync-api/migrations"
)

// applyMigrations brings the schema up to date. It runs on every start
// so a fresh deployment needs no separate migration step.
func applyMigrations(cfg *config.Config) error {
	return runMigrationCommand(cfg, "up")
}

// runMigrationCommand executes one goose command against the embedded
// migration set.
func runMigrationCommand(cfg *config.Config, command string) error {
	db, err := goose.OpenDBWithDriver("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	switch command {
	case "up":
		err = goose.Up(db, ".")
	case "down":
		err = goose.Down(db, ".")
	case "status":
		err = goose.Status(db, ".")
	default:
		return fmt.Errorf("unknown migration command %q", command)
	}
	if err != nil {
		return fmt.Errorf("goose %s failed: %w", command, err)
	}
	return nil
}
