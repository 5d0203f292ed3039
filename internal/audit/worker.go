package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"creditengine/internal/audit/metrics"
)

const (
	defaultRelayInterval = 2 * time.Second
	defaultRelayBatch    = 100
)

// Outbox is the relay's view of the outbox table.
type Outbox interface {
	Pending(ctx context.Context, limit int) ([]OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []int64, at time.Time) error
}

// Producer delivers a batch of entries, all or nothing.
type Producer interface {
	Publish(ctx context.Context, entries []OutboxEntry) error
}

// Relay moves outbox entries to the message broker. Delivery is
// at-least-once: entries are marked only after the broker acknowledged them.
type Relay struct {
	outbox   Outbox
	producer Producer
	interval time.Duration
	batch    int
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type RelayOption func(*Relay)

func WithRelayInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithRelayBatch(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

func WithRelayLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithRelayMetrics(m *metrics.Metrics) RelayOption {
	return func(r *Relay) {
		r.metrics = m
	}
}

func NewRelay(outbox Outbox, producer Producer, opts ...RelayOption) *Relay {
	r := &Relay{
		outbox:   outbox,
		producer: producer,
		interval: defaultRelayInterval,
		batch:    defaultRelayBatch,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays on every tick until ctx is cancelled. Batch failures are logged
// and retried on the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.WarnContext(ctx, "audit relay batch failed", "error", err)
			}
		}
	}
}

// RelayOnce publishes one batch and returns how many entries were relayed.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	entries, err := r.outbox.Pending(ctx, r.batch)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		r.metrics.ObserveRelay(0, 0, false)
		return 0, nil
	}

	if err := r.producer.Publish(ctx, entries); err != nil {
		r.metrics.ObserveRelay(len(entries), 0, true)
		return 0, fmt.Errorf("publish %d outbox entries: %w", len(entries), err)
	}

	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	if err := r.outbox.MarkPublished(ctx, ids, time.Now()); err != nil {
		r.metrics.ObserveRelay(len(entries), 0, true)
		return 0, err
	}
	r.metrics.ObserveRelay(len(entries), len(entries), false)
	r.logger.DebugContext(ctx, "audit entries relayed", "count", len(entries))
	return len(entries), nil
}
