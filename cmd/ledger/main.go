package main

import (
	"os"

	"go.uber.org/zap"

	"job-escrow-service/internal/logging"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// the command's own logger is already gone, and config errors happen
		// before one exists
		reportFailure(logging.InitLog(zap.NewAtomicLevel()), err)
		os.Exit(1)
	}
}

func reportFailure(logger *zap.Logger, err error) {
	logger.Error("command failed", zap.Error(err))
	_ = logger.Sync()
}
