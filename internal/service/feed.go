package service

import (
	"context"
	"sync"

	"job-escrow-service/internal/entity"
)

// Feed is the append-only, in-process event log. Readers keep the Seq of the
// last event they handled and resume from it, so delivery is at-least-once.
type Feed struct {
	mu     sync.RWMutex
	events []entity.Event
	notify chan struct{}
}

func NewFeed() *Feed {
	return &Feed{notify: make(chan struct{})}
}

// Append assigns the next sequence number and wakes up waiting readers.
func (f *Feed) Append(evt entity.Event) entity.Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	evt.Seq = uint64(len(f.events)) + 1
	f.events = append(f.events, evt)

	close(f.notify)
	f.notify = make(chan struct{})
	return evt
}

// Restore replaces the log with persisted events, renumbering them in order.
func (f *Feed) Restore(events []entity.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = make([]entity.Event, len(events))
	for i, evt := range events {
		evt.Seq = uint64(i) + 1
		f.events[i] = evt
	}
}

// Last returns the Seq of the newest event, 0 if the feed is empty.
func (f *Feed) Last() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return uint64(len(f.events))
}

// Since returns up to limit events with Seq > after. limit <= 0 means no limit.
func (f *Feed) Since(after uint64, limit int) []entity.Event {
	f.mu.RLock()
	defer f.mu.RUnlock()
	events, _ := f.sinceLocked(after, limit)
	return events
}

func (f *Feed) sinceLocked(after uint64, limit int) ([]entity.Event, <-chan struct{}) {
	if after >= uint64(len(f.events)) {
		return nil, f.notify
	}
	tail := f.events[after:]
	if limit > 0 && len(tail) > limit {
		tail = tail[:limit]
	}
	out := make([]entity.Event, len(tail))
	copy(out, tail)
	return out, f.notify
}

// Wait blocks until at least one event with Seq > after exists or ctx is done.
func (f *Feed) Wait(ctx context.Context, after uint64, limit int) ([]entity.Event, error) {
	for {
		f.mu.RLock()
		events, notify := f.sinceLocked(after, limit)
		f.mu.RUnlock()

		if len(events) > 0 {
			return events, nil
		}
		select {
		case <-notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
