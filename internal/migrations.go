package internal

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/atelier/migrations"
	"github.com/pressly/goose/v3"
)

// RunMigrations executes all pending database migrations
func RunMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations.MigrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// MigrationVersion reports the schema version currently applied.
func MigrationVersion(db *sql.DB) (int64, error) {
	goose.SetBaseFS(migrations.MigrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return 0, fmt.Errorf("failed to set goose dialect: %w", err)
	}

	v, err := goose.GetDBVersion(db)
	if err != nil {
		return 0, fmt.Errorf("failed to read migration version: %w", err)
	}
	return v, nil
}
