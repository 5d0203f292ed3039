// Package app assembles the credit engine from configuration. It is shared
// by the HTTP server and the operator CLI.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"creditengine/internal/application/adapters"
	appmetrics "creditengine/internal/application/metrics"
	"creditengine/internal/application/service"
	"creditengine/internal/application/store"
	"creditengine/internal/audit"
	auditmetrics "creditengine/internal/audit/metrics"
	"creditengine/internal/collaborator"
	"creditengine/internal/collaborator/analysis"
	collabmetrics "creditengine/internal/collaborator/metrics"
	"creditengine/internal/collaborator/ml"
	"creditengine/internal/collaborator/ocr"
	"creditengine/internal/decision"
	decisionmetrics "creditengine/internal/decision/metrics"
	"creditengine/internal/fairness"
	fairnessmetrics "creditengine/internal/fairness/metrics"
	"creditengine/internal/identity"
	identitymetrics "creditengine/internal/identity/metrics"
	"creditengine/internal/platform/config"
	"creditengine/internal/platform/postgres"
	"creditengine/internal/platform/redis"
	"creditengine/internal/scoring"
	scoringmetrics "creditengine/internal/scoring/metrics"
	"creditengine/pkg/platform/circuit"
)

// Store is everything the engine persists through.
type Store interface {
	service.Store
	fairness.PendingStore
}

// App holds the assembled components and the resources they own.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	DB       *sql.DB
	Redis    *redis.Client
	Store    Store
	Outbox   *Outbox
	Recorder *fairness.Recorder
	Model    *ml.Client
	Service  *service.Service
	Producer *audit.KafkaProducer

	closers []func() error
}

// Outbox is the audit outbox in either backing.
type Outbox struct {
	audit.Store
	audit.Outbox
}

// New connects infrastructure and builds every component. Without
// DATABASE_URL the stores are in memory; without REDIS_URL the submission
// guard and fairness cache are process-local; without KAFKA_BROKERS audit
// events stay in the outbox.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	if err := a.connect(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	weights := scoring.DefaultWeights()
	if cfg.Scoring.Weights != "" {
		w, err := scoring.ParseWeights(cfg.Scoring.Weights)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("scoring weights: %w", err)
		}
		weights = w
	}
	engine, err := newEngine(cfg.Scoring)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	collabMetrics := collabmetrics.New()
	ocrHTTP := a.collaboratorClient("ocr", cfg.Collaborators.OCRURL, cfg.Collaborators.OCRTimeout, collabMetrics)
	analysisHTTP := a.collaboratorClient("analysis", cfg.Collaborators.AnalysisURL, cfg.Collaborators.AnalysisTimeout, collabMetrics)
	mlHTTP := a.collaboratorClient("ml", cfg.Collaborators.MLURL, cfg.Collaborators.MLTimeout, collabMetrics)
	a.Model = ml.New(mlHTTP)

	gate := identity.NewGate(ocr.New(ocrHTTP),
		identity.WithTimeout(cfg.Collaborators.OCRTimeout),
		identity.WithLogger(logger),
		identity.WithMetrics(identitymetrics.New()),
	)
	scorer := scoring.NewScorer(analysis.New(analysisHTTP),
		scoring.WithConcurrency(cfg.Scoring.FanOutLimit),
		scoring.WithLogger(logger),
		scoring.WithMetrics(scoringmetrics.New()),
	)

	recorderOpts := []fairness.Option{
		fairness.WithProtectedAttribute(cfg.Fairness.ProtectedAttribute),
		fairness.WithCacheTTL(cfg.Fairness.CacheTTL),
		fairness.WithLogger(logger),
		fairness.WithMetrics(fairnessmetrics.New()),
	}
	serviceOpts := []service.Option{
		service.WithLogger(logger),
		service.WithMetrics(appmetrics.New()),
		service.WithDecisionMetrics(decisionmetrics.New()),
		service.WithWeights(weights),
		service.WithModelTimeout(cfg.Collaborators.MLTimeout),
		service.WithSubmissionTTL(cfg.Scoring.SubmissionTTL),
	}
	if a.Redis != nil {
		recorderOpts = append(recorderOpts, fairness.WithCache(fairness.NewRedisCache(a.Redis.Client)))
		serviceOpts = append(serviceOpts, service.WithSubmissionGuard(service.NewRedisGuard(a.Redis.Client)))
	}
	a.Recorder = fairness.NewRecorder(a.Model, recorderOpts...)

	publisher := audit.NewPublisher(a.Outbox,
		audit.WithLogger(logger),
		audit.WithMetrics(auditmetrics.New()),
	)
	serviceOpts = append(serviceOpts, service.WithAuditPublisher(publisher))

	a.Service = service.New(
		a.Store,
		gate,
		scorer,
		engine,
		adapters.NewRiskModelAdapter(a.Model),
		a.Recorder,
		serviceOpts...,
	)
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	db, err := postgres.Open(ctx, a.Config.Database)
	if err != nil {
		return err
	}
	if db != nil {
		a.DB = db
		a.closers = append(a.closers, db.Close)
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		a.Store = store.NewPostgres(db)
		outbox := audit.NewPostgresOutbox(db)
		a.Outbox = &Outbox{Store: outbox, Outbox: outbox}
	} else {
		a.Logger.WarnContext(ctx, "DATABASE_URL not set, using in-memory stores")
		a.Store = store.NewInMemory()
		outbox := audit.NewInMemoryOutbox()
		a.Outbox = &Outbox{Store: outbox, Outbox: outbox}
	}

	rdb, err := redis.New(ctx, a.Config.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		a.Redis = rdb
		a.closers = append(a.closers, rdb.Close)
	} else {
		a.Logger.WarnContext(ctx, "REDIS_URL not set, submission guard and fairness cache are process-local")
	}

	if len(a.Config.Kafka.Brokers) > 0 {
		producer, err := audit.NewKafkaProducer(a.Config.Kafka.Brokers, a.Config.Kafka.AuditTopic)
		if err != nil {
			return err
		}
		a.Producer = producer
		a.closers = append(a.closers, func() error {
			producer.Close()
			return nil
		})
	}
	return nil
}

// Relay returns the outbox relay, or nil when no Kafka brokers are configured.
func (a *App) Relay() *audit.Relay {
	if a.Producer == nil {
		return nil
	}
	return audit.NewRelay(a.Outbox, a.Producer,
		audit.WithRelayInterval(a.Config.Kafka.RelayInterval),
		audit.WithRelayBatch(a.Config.Kafka.RelayBatch),
		audit.WithRelayLogger(a.Logger),
		audit.WithRelayMetrics(auditmetrics.New()),
	)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) collaboratorClient(name, baseURL string, timeout time.Duration, m *collabmetrics.Metrics) *collaborator.Client {
	c := a.Config.Collaborators
	return collaborator.NewClient(name, baseURL,
		collaborator.WithTimeout(timeout),
		collaborator.WithRateLimit(c.RequestsPerSec, c.Burst),
		collaborator.WithBreaker(circuit.New(name,
			circuit.WithFailureThreshold(c.FailureThreshold),
			circuit.WithCooldown(c.BreakerCooldown),
		)),
		collaborator.WithLogger(a.Logger),
		collaborator.WithMetrics(m),
	)
}

func newEngine(cfg config.ScoringConfig) (*decision.Engine, error) {
	if len(cfg.MandatoryCategories) == 0 {
		return decision.NewEngine(), nil
	}
	cats := make([]scoring.Category, 0, len(cfg.MandatoryCategories))
	for _, raw := range cfg.MandatoryCategories {
		cat, err := scoring.ParseCategory(raw)
		if err != nil {
			return nil, fmt.Errorf("mandatory categories: %w", err)
		}
		cats = append(cats, cat)
	}
	return decision.NewEngine(decision.WithMandatoryCategories(cats)), nil
}
