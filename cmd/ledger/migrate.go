package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"job-escrow-service/internal/config"
	"job-escrow-service/internal/repository/postgresql"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the ledger tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, done, err := setup()
		if err != nil {
			return errors.Wrap(err, "reading configuration")
		}
		defer done()

		if cfg.Database.DSN == "" {
			return errors.New("POSTGRES_DSN is not set")
		}

		ctx := cmd.Context()
		zap.S().Infow("migrating", "postgres", config.RedactDSN(cfg.Database.DSN))

		pool, err := postgresql.NewPool(ctx, cfg.Database.DSN)
		if err != nil {
			return errors.Wrap(err, "postgres")
		}
		defer pool.Close()

		if err := postgresql.Migrate(ctx, pool); err != nil {
			return err
		}
		zap.S().Info("db migrated")
		return nil
	},
}
