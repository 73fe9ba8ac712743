package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"job-escrow-service/internal/entity"
)

// Notifier delivers one ledger event to an outside consumer.
type Notifier interface {
	Notify(ctx context.Context, evt entity.Event) error
}

// WebhookNotifier POSTs events as JSON. Receivers dedupe on X-Event-ID since
// the same event can arrive more than once.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, evt entity.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-ID", evt.ID.String())
	req.Header.Set("X-Event-Kind", string(evt.Kind))

	resp, err := n.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "post event")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}

// LogNotifier only logs events. Used when no webhook is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, evt entity.Event) error {
	n.logger.Info("ledger event",
		zap.Stringer("event_id", evt.ID),
		zap.String("kind", string(evt.Kind)),
		zap.Uint64("job_id", uint64(evt.JobID)),
	)
	return nil
}
