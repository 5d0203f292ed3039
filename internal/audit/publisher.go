// Package audit records compliance events in a transactional outbox and
// relays them to Kafka.
//
// Publisher.Emit is fail-closed: when the event cannot be written the caller
// must fail its operation, and when ctx carries a transaction the event
// commits or rolls back with it.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"creditengine/internal/audit/metrics"
	"creditengine/pkg/requestcontext"
)

// Store appends events to the outbox.
type Store interface {
	Append(ctx context.Context, event Event) error
}

type Publisher struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit validates and writes the event, filling ID, Timestamp and RequestID
// from ctx when unset.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Type == "" {
		return errors.New("compliance event requires a type")
	}
	if event.UserID.IsNil() {
		return errors.New("compliance event requires a user id")
	}
	if event.ApplicationID.IsNil() {
		return errors.New("compliance event requires an application id")
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	if err := p.store.Append(ctx, event); err != nil {
		p.metrics.IncrementPersistFailure()
		p.logger.ErrorContext(ctx, "compliance audit failed",
			"type", event.Type,
			"application_id", event.ApplicationID,
			"error", err,
		)
		return fmt.Errorf("compliance audit persistence failed: %w", err)
	}
	p.metrics.IncrementEmitted(string(event.Type))
	return nil
}
