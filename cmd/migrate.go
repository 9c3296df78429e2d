package cmd

import (
	"context"
	"fmt"

	"docmender/internal/adapter/outbound/repository"
	"docmender/internal/application/common/slogger"

	"github.com/spf13/cobra"
)

// newMigrateCmd creates and returns the migrate command.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Run database migrations to set up or update the database schema.

Creates the documents table and supporting indexes. The migration is
idempotent and safe to run against an already-migrated database.

Configuration for the database connection is loaded from config files and
environment variables.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runMigrations()
		},
	}
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newMigrateCmd())
}

func runMigrations() error {
	ctx := context.Background()

	pool, err := repository.NewDatabaseConnection(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return err
	}

	slogger.InfoNoCtx("Database migrations applied", slogger.Fields{
		"database": cfg.Database.Name,
	})
	return nil
}
