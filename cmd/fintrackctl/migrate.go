package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fintrack/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := storage.RunMigrations(cfg.SQLiteDBPath); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	fmt.Printf("Migrations applied to %s\n", cfg.SQLiteDBPath)
	return nil
}
