package fairness

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"creditengine/internal/collaborator"
	"creditengine/internal/collaborator/ml"
	"creditengine/internal/decision"
	"creditengine/internal/fairness/metrics"
	dErrors "creditengine/pkg/domain-errors"
	"creditengine/pkg/requestcontext"
)

const (
	defaultProtectedAttribute = "gender"
	defaultCacheTTL           = 5 * time.Minute
)

// Provider returns model-level fairness metrics. Implemented by the ML client.
type Provider interface {
	Fairness(ctx context.Context, protectedAttribute string) (ml.FairnessMetrics, error)
}

// PendingStore lists decisions recorded without fairness metrics and
// attaches their records later.
type PendingStore interface {
	ListFairnessPending(ctx context.Context, limit int) ([]decision.Decision, error)
	// SaveFairnessRecord inserts the record and clears the decision's
	// FairnessUnavailable flag.
	SaveFairnessRecord(ctx context.Context, rec Record) error
}

type Recorder struct {
	provider  Provider
	attribute string
	cache     Cache
	cacheTTL  time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Recorder)

func WithProtectedAttribute(attr string) Option {
	return func(r *Recorder) {
		if attr != "" {
			r.attribute = attr
		}
	}
}

// WithCache replaces the default in-memory cache, typically with a RedisCache.
func WithCache(c Cache) Option {
	return func(r *Recorder) {
		if c != nil {
			r.cache = c
		}
	}
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Recorder) {
		if ttl > 0 {
			r.cacheTTL = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

func NewRecorder(provider Provider, opts ...Option) *Recorder {
	r := &Recorder{
		provider:  provider,
		attribute: defaultProtectedAttribute,
		cache:     NewMemoryCache(),
		cacheTTL:  defaultCacheTTL,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) ProtectedAttribute() string { return r.attribute }

// Fetch returns the fairness metrics for the configured protected attribute,
// from cache when fresh. Failures become an Unavailable input, never an error.
func (r *Recorder) Fetch(ctx context.Context) Input {
	return r.FetchFor(ctx, r.attribute)
}

// FetchFor is Fetch for an explicit protected attribute.
func (r *Recorder) FetchFor(ctx context.Context, attribute string) Input {
	cached, ok, err := r.cache.Get(ctx, attribute)
	if err != nil {
		r.logger.WarnContext(ctx, "fairness cache read failed",
			"protected_attribute", attribute,
			"error", err,
		)
	}
	r.metrics.IncrementCacheLookup(ok)
	if ok {
		return Measured(cached)
	}

	fm, err := r.provider.Fairness(ctx, attribute)
	if err != nil {
		reason := fmt.Sprintf("fairness metrics unavailable: %s", collaborator.CategoryOf(err))
		r.logger.WarnContext(ctx, "fairness metrics fetch failed",
			"protected_attribute", attribute,
			"error", err,
		)
		return Unavailable(reason)
	}

	m := Metrics(fm)
	if err := m.Validate(); err != nil {
		r.logger.WarnContext(ctx, "fairness metrics rejected",
			"protected_attribute", attribute,
			"error", err,
		)
		return Unavailable("fairness metrics invalid")
	}
	r.metrics.SetFairnessScore(attribute, m.FairnessScore)

	if err := r.cache.Set(ctx, attribute, m, r.cacheTTL); err != nil {
		r.logger.WarnContext(ctx, "fairness cache write failed",
			"protected_attribute", attribute,
			"error", err,
		)
	}
	return Measured(m)
}

// Record fills the decision's attribution and builds its fairness record.
// It does not persist anything: the caller stores both together with the
// decision. With unavailable metrics the decision is flagged for backfill.
func (r *Recorder) Record(ctx context.Context, d decision.Decision, attribution map[string]float64, input Input) (Outcome, error) {
	if len(attribution) == 0 {
		r.logger.WarnContext(ctx, "empty feature attribution",
			"decision_id", d.ID,
			"application_id", d.ApplicationID,
		)
		r.metrics.IncrementEmptyAttribution()
		d.Attribution = map[string]float64{}
	} else {
		d.Attribution = maps.Clone(attribution)
	}

	if !input.Available() {
		r.logger.InfoContext(ctx, "decision recorded without fairness metrics",
			"decision_id", d.ID,
			"reason", input.Reason(),
		)
		r.metrics.IncrementUnavailable()
		d.FairnessUnavailable = true
		return Outcome{Decision: d}, nil
	}

	m := input.Metrics()
	if err := m.Validate(); err != nil {
		return Outcome{}, err
	}
	d.FairnessUnavailable = false
	return Outcome{
		Decision: d,
		Record: &Record{
			DecisionID:         d.ID,
			ProtectedAttribute: r.attribute,
			Metrics:            m,
			RecordedAt:         requestcontext.Now(ctx),
		},
	}, nil
}

// Backfill attaches fairness records to up to limit decisions that were
// recorded while metrics were unavailable. It returns how many were filled.
func (r *Recorder) Backfill(ctx context.Context, store PendingStore, limit int) (int, error) {
	if limit <= 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "backfill limit must be positive")
	}
	pending, err := store.ListFairnessPending(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list decisions pending fairness: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	input := r.Fetch(ctx)
	if !input.Available() {
		return 0, dErrors.New(dErrors.CodeCollaboratorUnavailable, input.Reason())
	}

	filled := 0
	for _, d := range pending {
		if err := ctx.Err(); err != nil {
			return filled, err
		}
		rec := Record{
			DecisionID:         d.ID,
			ProtectedAttribute: r.attribute,
			Metrics:            input.Metrics(),
			RecordedAt:         time.Now(),
		}
		if err := store.SaveFairnessRecord(ctx, rec); err != nil {
			r.metrics.AddBackfilled(filled)
			return filled, fmt.Errorf("save fairness record for decision %s: %w", d.ID, err)
		}
		filled++
	}
	r.metrics.AddBackfilled(filled)
	r.logger.InfoContext(ctx, "fairness backfill complete",
		"filled", filled,
		"protected_attribute", r.attribute,
	)
	return filled, nil
}
