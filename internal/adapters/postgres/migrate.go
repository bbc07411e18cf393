package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kevin07696/payment-engine/internal/adapters/postgres/migrations"
	"github.com/pressly/goose/v3"
)

const dialect = "postgres"

// RunMigrations runs a goose command against the embedded migrations.
func RunMigrations(ctx context.Context, db *sql.DB, command string, args ...string) error {
	goose.SetBaseFS(migrations.FS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	if err := goose.RunContext(ctx, command, db, ".", args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}
