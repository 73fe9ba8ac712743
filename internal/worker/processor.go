package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"job-escrow-service/internal/metrics"
	"job-escrow-service/internal/service"
)

type Processor struct {
	notifier Notifier
	logger   *zap.Logger
}

func NewProcessor(notifier Notifier, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{notifier: notifier, logger: logger}
}

// Process relays one claimed event. On error the delivery must stay unacked so
// the reaper can hand it out again.
func (p *Processor) Process(ctx context.Context, d *service.Delivery) error {
	start := time.Now()
	evt := d.Event

	fields := []zap.Field{
		zap.Stringer("event_id", evt.ID),
		zap.String("kind", string(evt.Kind)),
		zap.Uint64("job_id", uint64(evt.JobID)),
	}

	if err := p.notifier.Notify(ctx, evt); err != nil {
		metrics.IncreaseEventsRelayed("error")
		p.logger.Warn("relay failed",
			append(fields, zap.Duration("duration", time.Since(start)), zap.Error(err))...)
		return err
	}

	metrics.IncreaseEventsRelayed("ok")
	p.logger.Debug("relayed", append(fields, zap.Duration("duration", time.Since(start)))...)
	return nil
}
