package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/alem-hub/flow-engine/migrations"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATIONS
// Embedded goose migrations, applied through database/sql with the pgx driver.
// ══════════════════════════════════════════════════════════════════════════════

func openMigrator(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// MigrateUp applies all pending migrations.
func MigrateUp(ctx context.Context, dsn string) error {
	db, err := openMigrator(dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("postgres: migrate up: %w", err)
	}
	return nil
}

// MigrateDown rolls back the last applied migration.
func MigrateDown(ctx context.Context, dsn string) error {
	db, err := openMigrator(dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := goose.DownContext(ctx, db, "."); err != nil {
		return fmt.Errorf("postgres: migrate down: %w", err)
	}
	return nil
}

// MigrateStatus prints the state of every migration to w.
func MigrateStatus(ctx context.Context, dsn string, w io.Writer) error {
	db, err := openMigrator(dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("postgres: migrate status: %w", err)
	}
	list, err := goose.CollectMigrations(".", 0, goose.MaxVersion)
	if err != nil {
		return fmt.Errorf("postgres: collect migrations: %w", err)
	}
	for _, m := range list {
		state := "pending"
		if m.Version <= current {
			state = "applied"
		}
		fmt.Fprintf(w, "%05d  %-8s %s\n", m.Version, state, m.Source)
	}
	return nil
}
