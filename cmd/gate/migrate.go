package main

import (
	"github.com/spf13/cobra"

	auth "github.com/goliatone/go-auth-gate"
	"github.com/goliatone/go-auth-gate/app"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Run all pending migrations for the configured database driver.`,
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := app.OpenDB(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := auth.Migrate(cmd.Context(), db)
	if err != nil {
		return err
	}

	if len(applied) == 0 {
		cmd.Println("Database is up to date")
		return nil
	}
	for _, name := range applied {
		cmd.Println("applied", name)
	}
	return nil
}
