package main

import (
	"github.com/spf13/cobra"

	"curator/internal/platform/config"
	"curator/internal/platform/logger"
	"curator/internal/platform/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		log := logger.New("curator-migrate")

		db, err := postgres.Open(cfg.Postgres)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := postgres.Migrate(db); err != nil {
			return err
		}
		log.Info("migrations applied")
		return nil
	},
}
