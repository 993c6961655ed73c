package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"UpdatesDigest/internal/config"
	"UpdatesDigest/internal/infrastructure/storage"
	"UpdatesDigest/internal/logging"
)

func migrateCMD() *cobra.Command {
	var (
		direction string
		steps     int
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := logging.NewWithWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

			dialect, err := storage.ParseDialect(cfg.Database.Driver)
			if err != nil {
				return err
			}
			if dialect == storage.SQLite {
				db, err := storage.OpenSQLite(cfg.Database.DSN)
				if err != nil {
					return err
				}
				logger.Info("sqlite schema is up to date")
				return db.Close()
			}
			if cfg.Database.DSN == "" {
				return fmt.Errorf("database.dsn is not configured")
			}
			if err := storage.MigratePostgres(cfg.Database.DSN, direction, steps, logger); err != nil {
				return err
			}
			logger.Info("migrations applied", "direction", direction, "steps", steps)
			return nil
		},
	}
	cmd.Flags().StringVar(&direction, "direction", "up", "up or down")
	cmd.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	return cmd
}
