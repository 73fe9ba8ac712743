package postgresql_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"job-escrow-service/internal/entity"
	"job-escrow-service/internal/escrow"
	"job-escrow-service/internal/repository/postgresql"
	"job-escrow-service/internal/service"
)

// Runs against a disposable database: LEDGER_TEST_POSTGRES_DSN=postgres://... go test ./...
func newTestRepository(t *testing.T) *postgresql.LedgerRepository {
	t.Helper()
	dsn := os.Getenv("LEDGER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LEDGER_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	pool, err := postgresql.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `DROP TABLE IF EXISTS job_events, escrow, balances, jobs;`)
	require.NoError(t, err)
	require.NoError(t, postgresql.Migrate(ctx, pool))

	return postgresql.NewLedgerRepository(pool)
}

func TestLedgerRepository_RoundTripThroughLedger(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := service.NewLedger(escrow.NewCustodian(),
		service.WithStore(repo),
		service.WithClock(func() time.Time { return clock }),
	)

	require.NoError(t, l.Deposit(ctx, "0xc", 1000))
	first, err := l.Post(ctx, "0xc", "first", 100)
	require.NoError(t, err)
	second, err := l.Post(ctx, "0xc", "second", 250)
	require.NoError(t, err)
	require.NoError(t, l.Accept(ctx, first, "0xf"))
	require.NoError(t, l.Accept(ctx, second, "0xf"))
	require.NoError(t, l.Release(ctx, first, "0xc"))

	snap, err := repo.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, map[entity.Actor]uint64{"0xc": 650, "0xf": 100}, snap.Balances)
	assert.Equal(t, map[entity.JobID]uint64{second: 250}, snap.Escrow)
	require.Len(t, snap.Jobs, 2)
	assert.Equal(t, entity.StatusCompleted, snap.Jobs[0].Status)
	assert.Equal(t, entity.StatusInProgress, snap.Jobs[1].Status)
	assert.Equal(t, entity.Actor("0xf"), snap.Jobs[1].Freelancer)
	assert.True(t, clock.Equal(snap.Jobs[0].CreatedAt))
	require.Len(t, snap.Events, 5)
	assert.Equal(t, entity.EventJobCompleted, snap.Events[4].Kind)

	restored := service.NewLedger(escrow.NewCustodian(), service.WithStore(repo))
	require.NoError(t, restored.Restore(snap))
	assert.Equal(t, l.List(), restored.List())
	assert.Equal(t, uint64(100), restored.BalanceOf("0xf"))

	require.NoError(t, restored.Release(ctx, second, "0xc"))
	snap, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Escrow)
	assert.Equal(t, uint64(350), snap.Balances["0xf"])
}

func TestLedgerRepository_RejectsStaleTransitions(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	now := time.Now().UTC()
	job := entity.Job{ID: 0, Client: "0xc", Description: "x", Budget: 10, Status: entity.StatusOpen, CreatedAt: now, UpdatedAt: now}

	err := repo.SavePosted(ctx, job, entity.NewJobPosted(job))
	assert.True(t, errors.Is(err, entity.ErrInsufficientFunds), "got %v", err)

	require.NoError(t, repo.SaveDeposit(ctx, "0xc", 10))
	require.NoError(t, repo.SavePosted(ctx, job, entity.NewJobPosted(job)))

	done := job
	done.Freelancer = "0xf"
	done.Status = entity.StatusCompleted
	err = repo.SaveCompleted(ctx, done, entity.NewJobCompleted(done))
	assert.True(t, errors.Is(err, entity.ErrInvalidTransition), "got %v", err)

	snap, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[entity.JobID]uint64{0: 10}, snap.Escrow)
	assert.Len(t, snap.Events, 1)
}
