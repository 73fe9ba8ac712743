package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"job-escrow-service/internal/entity"
)

// EventQueue relays ledger events to out-of-process consumers with
// at-least-once delivery.
type EventQueue interface {
	Publish(ctx context.Context, evt entity.Event) error
	ClaimBlocking(ctx context.Context, timeout time.Duration) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	// Touch renews the claim time of a delivery that is still being worked on.
	Touch(ctx context.Context, d *Delivery) error
	RequeueStale(ctx context.Context, olderThan time.Duration, limit int64) (int64, error)
}

// Delivery is a claimed event. It stays in the processing list until acked.
type Delivery struct {
	Event   entity.Event
	payload string
}

// redisEventQueue is a reliable queue on Redis lists.
// Publish: LPUSH queue
// Claim:   BRPOPLPUSH queue -> processing, claim time stored in a hash by event id
// Ack:     LREM from processing
type redisEventQueue struct {
	rdb           *redis.Client
	queueKey      string
	processingKey string
	claimedAtKey  string
	now           func() time.Time
}

func NewRedisEventQueue(rdb *redis.Client, queueKey, processingKey string) EventQueue {
	return &redisEventQueue{
		rdb:           rdb,
		queueKey:      queueKey,
		processingKey: processingKey,
		claimedAtKey:  processingKey + ":claimed_at",
		now:           time.Now,
	}
}

func (q *redisEventQueue) Publish(ctx context.Context, evt entity.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return pkgerrors.Wrap(err, "encode event")
	}
	return q.rdb.LPush(ctx, q.queueKey, payload).Err()
}

// ClaimBlocking waits up to timeout for an event; timeout <= 0 waits until ctx
// is done. It returns redis.Nil when nothing arrived in time.
func (q *redisEventQueue) ClaimBlocking(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	if timeout < 0 {
		timeout = 0
	}
	payload, err := q.rdb.BRPopLPush(ctx, q.queueKey, q.processingKey, timeout).Result()
	if err != nil {
		return nil, err
	}

	d := &Delivery{payload: payload}
	if err := json.Unmarshal([]byte(payload), &d.Event); err != nil {
		// poison message: drop it so it is not requeued forever
		_ = q.rdb.LRem(ctx, q.processingKey, 1, payload).Err()
		return nil, pkgerrors.Wrap(err, "decode event")
	}

	// without a claim time the reaper treats the delivery as stale
	_ = q.rdb.HSet(ctx, q.claimedAtKey, d.Event.ID.String(), q.now().Unix()).Err()
	return d, nil
}

func (q *redisEventQueue) Ack(ctx context.Context, d *Delivery) error {
	if err := q.rdb.LRem(ctx, q.processingKey, 1, d.payload).Err(); err != nil {
		return err
	}
	_ = q.rdb.HDel(ctx, q.claimedAtKey, d.Event.ID.String()).Err()
	return nil
}

func (q *redisEventQueue) Touch(ctx context.Context, d *Delivery) error {
	return q.rdb.HSet(ctx, q.claimedAtKey, d.Event.ID.String(), q.now().Unix()).Err()
}

// RequeueStale moves deliveries claimed longer than olderThan ago back to the
// queue. It's the "reaper" that makes delivery at-least-once when a worker dies
// between claim and ack.
//
// The processing list holds the oldest claim at its tail, so entries are pushed
// back oldest last and are claimed again in their original order, ahead of
// anything published since.
func (q *redisEventQueue) RequeueStale(ctx context.Context, olderThan time.Duration, limit int64) (int64, error) {
	if limit <= 0 {
		return 0, nil
	}
	payloads, err := q.rdb.LRange(ctx, q.processingKey, -limit, -1).Result()
	if err != nil {
		return 0, err
	}

	cutoff := q.now().Add(-olderThan).Unix()
	var moved int64
	for _, payload := range payloads {
		var evt entity.Event
		if err := json.Unmarshal([]byte(payload), &evt); err != nil {
			_ = q.rdb.LRem(ctx, q.processingKey, 1, payload).Err()
			continue
		}
		id := evt.ID.String()

		claimed, err := q.rdb.HGet(ctx, q.claimedAtKey, id).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return moved, err
		}
		if err == nil {
			if ts, perr := strconv.ParseInt(claimed, 10, 64); perr == nil && ts > cutoff {
				continue
			}
		}

		_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.LRem(ctx, q.processingKey, 1, payload)
			p.RPush(ctx, q.queueKey, payload)
			p.HDel(ctx, q.claimedAtKey, id)
			return nil
		})
		if err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}
