package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"creditengine/internal/platform/postgres"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema",
		Long: `Apply the embedded schema to the database named by DATABASE_URL.

Statements are idempotent, so running migrate against an up-to-date
database is a no-op.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			db, err := postgres.Open(ctx, cfg.Database)
			if err != nil {
				return err
			}
			if db == nil {
				return errors.New("DATABASE_URL is not set")
			}
			defer db.Close()

			if err := postgres.Migrate(ctx, db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.InfoContext(ctx, "schema applied")
			return nil
		},
	}
}
