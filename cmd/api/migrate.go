package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ideaflow/api/internal/config"
	"ideaflow/api/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back the embedded schema migrations",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		direction := "up"
		if len(args) == 1 {
			direction = args[0]
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		dialect, err := store.ParseDialect(cfg.DatabaseDriver)
		if err != nil {
			return err
		}
		db, err := store.Open(cmd.Context(), dialect, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer db.Close()

		if direction == "down" {
			err = store.RollbackMigrations(cmd.Context(), db, dialect)
		} else {
			err = store.ApplyMigrations(cmd.Context(), db, dialect)
		}
		if err != nil {
			return fmt.Errorf("migrate %s: %w", direction, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "migrations %s complete (%s)\n", direction, dialect)
		return nil
	},
}
