package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/lessons-api/pkg/database"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|status]",
	Short:     "Manage the database schema",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down", "status"},
	RunE: func(cmd *cobra.Command, args []string) error {
		action := "up"
		if len(args) == 1 {
			action = args[0]
		}

		cfg, logr, err := bootstrap()
		if err != nil {
			return err
		}
		defer logr.Sync() //nolint:errcheck

		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer db.Close()

		migrator, err := database.NewMigrator(db, logr)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		switch action {
		case "up":
			return migrator.Up(ctx)
		case "down":
			return migrator.Down(ctx)
		default:
			version, err := migrator.Version(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return nil
		}
	},
}
