package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/revaspay/onboarding/internal/database"
	"github.com/revaspay/onboarding/internal/database/migrations"
)

func newMigrateCmd() *cobra.Command {
	var (
		rollback bool
		list     bool
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(migrations.IDs(), "\n"))
				return nil
			}

			cfg := loadConfig()
			dbConfig := cfg.Database
			dbConfig.AutoMigrate = false
			db, err := database.InitDB(dbConfig)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}

			if rollback {
				if err := migrations.RollbackLast(db); err != nil {
					return fmt.Errorf("rollback failed: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Rolled back last migration")
				return nil
			}
			if err := migrations.RunMigrations(db); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&rollback, "rollback", false, "Roll back the most recent migration")
	cmd.Flags().BoolVar(&list, "list", false, "List migration ids without connecting")
	return cmd
}
