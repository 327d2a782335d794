// fintrackctl is the admin CLI: migrations, template seeding, and
// report export, all working directly against the database.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fintrack/internal/config"
	"fintrack/internal/storage"
)

var flagDBPath string

var rootCmd = &cobra.Command{
	Use:   "fintrackctl",
	Short: "Admin CLI for the fintrack backend",
	Long:  "Run migrations, seed budget and savings templates, and export monthly reports.",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "SQLite database path (defaults to SQLITE_DB_PATH)")
}

// loadConfig resolves configuration and applies the --db override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flagDBPath != "" {
		cfg.SQLiteDBPath = flagDBPath
	}
	return cfg, nil
}

// openRepo is the shared database path used by all commands.
func openRepo() (*storage.SQLiteRepository, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return repo, cfg, nil
}
