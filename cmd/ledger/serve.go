package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"job-escrow-service/internal/entity"
	"job-escrow-service/internal/escrow"
	"job-escrow-service/internal/repository/postgresql"
	"job-escrow-service/internal/service"
	httptransport "job-escrow-service/internal/transport/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ledger HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, done, err := setup()
		if err != nil {
			return errors.Wrap(err, "reading configuration")
		}
		defer done()

		zap.S().Infow("starting ledger", "config", cfg.String())

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		opts := []service.LedgerOption{
			service.WithLogger(logger.Named("ledger")),
			service.WithMinBudget(cfg.Ledger.MinBudget),
			service.WithIDBase(entity.JobID(cfg.Ledger.IDBase)),
		}

		var repo *postgresql.LedgerRepository
		if cfg.Database.DSN != "" {
			pool, err := postgresql.NewPool(ctx, cfg.Database.DSN)
			if err != nil {
				return errors.Wrap(err, "postgres")
			}
			defer pool.Close()

			if err := postgresql.Migrate(ctx, pool); err != nil {
				return err
			}
			repo = postgresql.NewLedgerRepository(pool)
			opts = append(opts, service.WithStore(repo))
		} else {
			zap.S().Warn("POSTGRES_DSN not set: ledger state lives in memory only")
		}

		if cfg.Redis.Addr != "" {
			rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
			defer rdb.Close()
			if err := rdb.Ping(ctx).Err(); err != nil {
				return errors.Wrap(err, "redis")
			}
			opts = append(opts, service.WithRelay(
				service.NewRedisEventQueue(rdb, cfg.Redis.EventsKey, cfg.Redis.ProcessingKey),
			))
		}

		ledger := service.NewLedger(escrow.NewCustodian(), opts...)

		if repo != nil {
			snap, err := repo.Load(ctx)
			if err != nil {
				return errors.Wrap(err, "loading ledger state")
			}
			if err := ledger.Restore(snap); err != nil {
				return errors.Wrap(err, "restoring ledger state")
			}
			stats := ledger.Stats()
			zap.S().Infow("ledger restored", "jobs", stats.Total, "open", stats.Open,
				"in_progress", stats.InProgress, "completed", stats.Completed)
		}

		router := httptransport.Routes(httptransport.NewHandler(ledger), httptransport.RouteOptions{
			Logger:         logger,
			RateLimitRPS:   cfg.Ledger.RateLimitRPS,
			RateLimitBurst: cfg.Ledger.RateLimitBurst,
		})

		srv := &http.Server{
			Addr:              cfg.Ledger.Address,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.S().Infow("listening", "address", cfg.Ledger.Address)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return errors.Wrap(err, "http server")
			}
		case <-ctx.Done():
		}

		zap.S().Info("shutting down")
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		zap.S().Info("ledger stopped")
		return nil
	},
}
