package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spendworth/sift/internal/cli"
	"github.com/spendworth/sift/internal/config"
	"github.com/spendworth/sift/internal/storage"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.Load()
			if err != nil {
				return err
			}

			store, err := storage.NewSQLiteStore(settings.DatabasePath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Println(cli.FormatSuccess("Database migrated to schema version " +
				fmt.Sprint(storage.ExpectedSchemaVersion)))
			return nil
		},
	}
}
