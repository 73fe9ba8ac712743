// cmd/worker/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"job-escrow-service/internal/config"
	"job-escrow-service/internal/logging"
	"job-escrow-service/internal/service"
	"job-escrow-service/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger := logging.InitLog(zap.NewAtomicLevel())
		logger.Error("worker failed", zap.Error(err))
		_ = logger.Sync()
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.New()
	if err != nil {
		return errors.Wrap(err, "reading configuration")
	}
	if cfg.Redis.Addr == "" {
		return errors.New("missing env: REDIS_ADDR")
	}

	logger := logging.InitLog(logging.Level(cfg.Ledger.LogLevel))
	defer func() { _ = logger.Sync() }()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "redis")
	}

	queue := service.NewRedisEventQueue(rdb, cfg.Redis.EventsKey, cfg.Redis.ProcessingKey)

	var notifier worker.Notifier
	if cfg.Worker.WebhookURL != "" {
		notifier = worker.NewWebhookNotifier(cfg.Worker.WebhookURL, cfg.Worker.WebhookTimeout)
	} else {
		logger.Warn("WEBHOOK_URL not set: events are only logged")
		notifier = worker.NewLogNotifier(logger.Named("events"))
	}

	// returns events from processing to the queue when a worker died before ack
	go worker.Reap(ctx, queue, cfg.Worker.RequeueInterval, cfg.Worker.StaleAfter, logger.Named("reaper"))

	logger.Info("worker config",
		zap.Int("workers", cfg.Worker.Workers),
		zap.String("redis_addr", cfg.Redis.Addr),
		zap.String("events_key", cfg.Redis.EventsKey),
		zap.String("processing_key", cfg.Redis.ProcessingKey),
		zap.String("webhook", cfg.Worker.WebhookURL),
	)

	processor := worker.NewProcessor(notifier, logger.Named("relay"))
	pool := worker.NewPool(queue, processor, cfg.Worker.Workers, logger.Named("pool"))
	pool.Run(ctx)

	logger.Info("worker stopped")
	return nil
}
