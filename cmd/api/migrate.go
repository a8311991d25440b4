package main

import (
	"pluto/internal/config"
	"pluto/internal/database"
	"pluto/internal/logger"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfig()
			if err != nil {
				return err
			}
			log, err := logger.NewLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			db, err := database.NewConnection(cfg.Postgres, cfg.Server.Mode == "debug")
			if err != nil {
				return err
			}

			if err := database.Migrate(db); err != nil {
				return err
			}
			log.Infow("database migrated", "host", cfg.Postgres.Host, "dbname", cfg.Postgres.DBName)
			return nil
		},
	}
}
