package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"job-escrow-service/internal/entity"
	"job-escrow-service/internal/service"
)

func TestLedger_ConcurrentAcceptHasSingleWinner(t *testing.T) {
	ctx := context.Background()
	l := newFundedLedger(t, map[entity.Actor]uint64{client: 1000})
	id, err := l.Post(ctx, client, "contested", 100)
	require.NoError(t, err)

	const racers = 32
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		losers  atomic.Int32
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := l.Accept(ctx, id, entity.Actor(fmt.Sprintf("0xF%02d", n)))
			switch {
			case err == nil:
				winners.Add(1)
			case errors.Is(err, entity.ErrInvalidTransition):
				losers.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, int32(racers-1), losers.Load())

	taken := 0
	for _, evt := range l.Feed().Since(0, 0) {
		if evt.Kind == entity.EventJobTaken {
			taken++
		}
	}
	assert.Equal(t, 1, taken)
}

func TestLedger_ConcurrentReleasePaysOnce(t *testing.T) {
	ctx := context.Background()
	l := newFundedLedger(t, map[entity.Actor]uint64{client: 1000})
	id, err := l.Post(ctx, client, "contested", 100)
	require.NoError(t, err)
	require.NoError(t, l.Accept(ctx, id, freelancer))

	var (
		wg   sync.WaitGroup
		paid atomic.Int32
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Release(ctx, id, client); err == nil {
				paid.Add(1)
			} else if !errors.Is(err, entity.ErrInvalidTransition) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), paid.Load())
	assert.Equal(t, uint64(100), l.BalanceOf(freelancer))
	requireConserved(t, l, 1000)
}

func TestLedger_ConcurrentMixedWorkloadConservesValue(t *testing.T) {
	ctx := context.Background()

	const (
		clients = 8
		perJob  = uint64(7)
		rounds  = 25
		funding = uint64(1000)
	)
	balances := map[entity.Actor]uint64{}
	for c := 0; c < clients; c++ {
		balances[entity.Actor(fmt.Sprintf("0xC%02d", c))] = funding
	}
	l := newFundedLedger(t, balances)
	supply := funding * clients

	var wg sync.WaitGroup
	for c := 0; c < clients; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			me := entity.Actor(fmt.Sprintf("0xC%02d", c))
			worker := entity.Actor(fmt.Sprintf("0xC%02d", (c+1)%clients))
			for r := 0; r < rounds; r++ {
				id, err := l.Post(ctx, me, "job", perJob)
				if err != nil {
					t.Errorf("post: %v", err)
					return
				}
				if err := l.Accept(ctx, id, worker); err != nil {
					t.Errorf("accept %d: %v", id, err)
					return
				}
				if r%3 == 0 {
					// leave some jobs in progress
					continue
				}
				if err := l.Release(ctx, id, me); err != nil {
					t.Errorf("release %d: %v", id, err)
					return
				}
			}
		}(c)
	}

	// concurrent readers must always observe a consistent ledger
	done := make(chan struct{})
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			if _, err := l.Audit(); err != nil {
				t.Errorf("audit during load: %v", err)
				return
			}
			for _, j := range l.List() {
				if err := j.CheckConsistency(); err != nil {
					t.Errorf("inconsistent job: %v", err)
					return
				}
			}
		}
	}()

	wg.Wait()
	close(done)
	readers.Wait()

	require.Equal(t, clients*rounds, l.Count())
	requireConserved(t, l, supply)

	jobs := l.List()
	for i, j := range jobs {
		assert.Equal(t, entity.JobID(i), j.ID)
	}

	// every job's events appear in transition order
	lastKind := map[entity.JobID]entity.EventKind{}
	next := map[entity.EventKind]entity.EventKind{
		"":                    entity.EventJobPosted,
		entity.EventJobPosted: entity.EventJobTaken,
		entity.EventJobTaken:  entity.EventJobCompleted,
	}
	for _, evt := range l.Feed().Since(0, 0) {
		assert.Equal(t, next[lastKind[evt.JobID]], evt.Kind, "job %d", evt.JobID)
		lastKind[evt.JobID] = evt.Kind
	}

	stats := l.Stats()
	assert.Equal(t, service.Stats{
		Total:      clients * rounds,
		InProgress: clients * 9, // r = 0,3,...,24
		Completed:  clients * (rounds - 9),
	}, stats)
}
