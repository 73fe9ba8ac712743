package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"job-escrow-service/internal/service"
)

// Pool relays claimed events through one lane per worker. Events are routed
// by job id, and a lane retries its current delivery until it succeeds, so the
// webhook sees each job's events in ledger order.
type Pool struct {
	queue      service.EventQueue
	processor  *Processor
	workers    int
	claimDelay time.Duration
	retryMin   time.Duration
	retryMax   time.Duration
	// heartbeat refreshes the claim of deliveries still waiting or retrying so
	// Reap does not hand them out a second time. Keep it well below the
	// reaper's stale age.
	heartbeat time.Duration
	logger    *zap.Logger
}

func NewPool(queue service.EventQueue, processor *Processor, workers int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		queue:      queue,
		processor:  processor,
		workers:    workers,
		claimDelay: 5 * time.Second,
		retryMin:   200 * time.Millisecond,
		retryMax:   10 * time.Second,
		heartbeat:  10 * time.Second,
		logger:     logger,
	}
}

// Run claims events until ctx is done and waits for in-flight deliveries.
// Deliveries still unacked at shutdown stay claimed for Reap.
func (p *Pool) Run(ctx context.Context) {
	p.logger.Info("worker pool started", zap.Int("workers", p.workers))

	lanes := make([]chan *service.Delivery, p.workers)
	var wg sync.WaitGroup

	for i := range lanes {
		lanes[i] = make(chan *service.Delivery)
		wg.Add(1)
		go func(n int, lane <-chan *service.Delivery) {
			defer wg.Done()
			log := p.logger.With(zap.Int("worker", n))
			for d := range lane {
				p.deliver(ctx, d, log)
			}
		}(i+1, lanes[i])
	}

	defer func() {
		for _, lane := range lanes {
			close(lane)
		}
		wg.Wait()
		p.logger.Info("worker pool stopped")
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		d, err := p.queue.ClaimBlocking(ctx, p.claimDelay)
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				p.logger.Warn("claim failed", zap.Error(err))
				if !sleepCtx(ctx, time.Second) {
					return
				}
			}
			continue
		}
		if !p.handOff(ctx, lanes[laneOf(d, len(lanes))], d) {
			return
		}
	}
}

func laneOf(d *service.Delivery, n int) int {
	return int(uint64(d.Event.JobID) % uint64(n))
}

// handOff blocks until the lane takes d, keeping its claim fresh meanwhile.
func (p *Pool) handOff(ctx context.Context, lane chan<- *service.Delivery, d *service.Delivery) bool {
	ticker := time.NewTicker(p.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case lane <- d:
			return true
		case <-ticker.C:
			p.touch(ctx, d)
		case <-ctx.Done():
			return false
		}
	}
}

// deliver retries d with backoff until it is relayed or ctx is done.
func (p *Pool) deliver(ctx context.Context, d *service.Delivery, log *zap.Logger) {
	delay := p.retryMin
	for attempt := 1; ; attempt++ {
		if err := p.processor.Process(ctx, d); err == nil {
			break
		}
		if ctx.Err() != nil {
			return
		}
		log.Debug("retrying delivery",
			zap.Stringer("event_id", d.Event.ID),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)
		if !sleepCtx(ctx, delay) {
			return
		}
		p.touch(ctx, d)
		delay = min(delay*2, p.retryMax)
	}

	// ack must outlive shutdown or the event is relayed twice
	if err := p.queue.Ack(context.WithoutCancel(ctx), d); err != nil {
		log.Warn("ack failed", zap.Stringer("event_id", d.Event.ID), zap.Error(err))
	}
}

func (p *Pool) touch(ctx context.Context, d *service.Delivery) {
	if err := p.queue.Touch(ctx, d); err != nil && ctx.Err() == nil {
		p.logger.Warn("refresh claim failed", zap.Stringer("event_id", d.Event.ID), zap.Error(err))
	}
}

// Reap periodically returns deliveries that were claimed but never acked.
func Reap(ctx context.Context, queue service.EventQueue, every, staleAfter time.Duration, logger *zap.Logger) {
	if every <= 0 {
		every = 30 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := queue.RequeueStale(ctx, staleAfter, 100)
			if err != nil {
				logger.Warn("requeue failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("requeued stale events", zap.Int64("count", n))
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
