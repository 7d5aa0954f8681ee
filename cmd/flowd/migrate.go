package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/alem-hub/flow-engine/internal/infrastructure/persistence/postgres"
)

func newMigrateCmd() *cobra.Command {
	var dsn string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.PersistentFlags().StringVar(&dsn, "database-url", "", "PostgreSQL URL (default: $DATABASE_URL)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrateUp(cmd.Context(), resolveDSN(dsn))
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url := resolveDSN(dsn)
			if url == "" {
				return errNoDatabaseURL
			}
			return postgres.MigrateDown(cmd.Context(), url)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url := resolveDSN(dsn)
			if url == "" {
				return errNoDatabaseURL
			}
			return postgres.MigrateStatus(cmd.Context(), url, cmd.OutOrStdout())
		},
	})
	return cmd
}

var errNoDatabaseURL = errors.New("database URL is required: pass --database-url or set DATABASE_URL")

func migrateUp(ctx context.Context, url string) error {
	if url == "" {
		return errNoDatabaseURL
	}
	return postgres.MigrateUp(ctx, url)
}
