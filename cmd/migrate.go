package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/theapemachine/a2a-coordinator/internal/config"
	"github.com/theapemachine/a2a-coordinator/pkg/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate() error {
	v := viper.New()
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return fmt.Errorf("migrate: loading config: %w", err)
	}

	if cfg.Store.Driver == "" || cfg.Store.Driver == "memory" {
		return fmt.Errorf("migrate: store.driver is %q, nothing to migrate", cfg.Store.Driver)
	}

	// OpenDB applies every pending migration as part of connecting; closing
	// the connection right after is all "migrate and exit" needs to do.
	db, err := store.OpenDB(store.DBConfig{Driver: cfg.Store.Driver, DSN: cfg.Store.DSN})
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("migrate: closing connection: %w", err)
	}
	return sqlDB.Close()
}
