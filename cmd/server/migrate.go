package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yuzvak/crowdfund-service/internal/config"
	"github.com/yuzvak/crowdfund-service/internal/infrastructure/persistence/postgres"
)

func newMigrateCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(rootOpts.ConfigPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if cfg.Database.Driver == "" {
				return fmt.Errorf("database.driver is not set, nothing to migrate")
			}

			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			conn, err := postgres.NewConnection(cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer conn.Close()

			return postgres.RunMigrations(cmd.Context(), conn, log)
		},
	}
}
