package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"job-escrow-service/internal/config"
	"job-escrow-service/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:           "ledger",
	Short:         "Job ledger with escrowed budgets",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

// setup reads the configuration and installs the global logger. The returned
// func flushes and restores the previous logger.
func setup() (*config.Config, *zap.Logger, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, nil, err
	}

	logger := logging.InitLog(logging.Level(cfg.Ledger.LogLevel))
	undo := zap.ReplaceGlobals(logger)

	return cfg, logger, func() {
		_ = logger.Sync()
		undo()
	}, nil
}
