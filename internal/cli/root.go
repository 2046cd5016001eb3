// Package cli defines the cobra command tree for the gate service.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"society-gate-backend/config"
	"society-gate-backend/internal/db"
	"society-gate-backend/internal/logging"
)

const defaultConfigPath = "./config/config.yaml"

var flagConfig string

// NewRootCmd creates the root cobra command with global flags.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gated",
		Short:         "Society gate visitor service",
		Long:          "Runs the visitor gate-pass workflow for a residential society: pre-approvals, sudden entry requests, check-in and check-out with live updates.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "config file path (default: $CONFIG_PATH or "+defaultConfigPath+")")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newResidentCmd(),
	)

	return root
}

// loadConfig reads the config file and sets up logging from it.
func loadConfig() (*config.Config, error) {
	path := flagConfig
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load configuration from %s: %w", path, err)
	}
	logging.Setup(cfg.Logging.Dev)
	return cfg, nil
}

// openDB opens and migrates the configured database.
func openDB(cfg *config.Config) (*gorm.DB, error) {
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	return gormDB, nil
}

// closeDB closes the database, logging any error to stderr.
func closeDB(gormDB *gorm.DB) {
	sqlDB, err := gormDB.DB()
	if err == nil {
		err = sqlDB.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing database: %v\n", err)
	}
}
