// Package service runs the application lifecycle and the evaluation pipeline
// that turns documents and an identity claim into one credit decision.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"creditengine/internal/application/metrics"
	"creditengine/internal/application/models"
	"creditengine/internal/application/ports"
	"creditengine/internal/audit"
	"creditengine/internal/decision"
	decisionMetrics "creditengine/internal/decision/metrics"
	"creditengine/internal/fairness"
	"creditengine/internal/identity"
	"creditengine/internal/scoring"
	id "creditengine/pkg/domain"
	dErrors "creditengine/pkg/domain-errors"
	"creditengine/pkg/platform/sentinel"
	"creditengine/pkg/requestcontext"
)

const (
	defaultModelTimeout  = 30 * time.Second
	defaultSubmissionTTL = 2 * time.Minute
)

// Store persists applications and what is recorded about them.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	Create(ctx context.Context, app *models.Application) error
	FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Application, error)
	Execute(ctx context.Context, appID id.ApplicationID, fn func(*models.Application) error) (*models.Application, error)
	AttachDecision(ctx context.Context, appID id.ApplicationID, d decision.Decision, rec *fairness.Record, fn func(*models.Application) error) (*models.Application, error)
	SaveVerification(ctx context.Context, v models.IdentityVerification) error
	SaveDocumentScores(ctx context.Context, scores []scoring.DocumentScore) error
	FindDecision(ctx context.Context, appID id.ApplicationID) (models.DecisionDetails, error)
	Delete(ctx context.Context, appID id.ApplicationID) error
}

type IdentityGate interface {
	Verify(ctx context.Context, claimedID string, image []byte) (identity.Result, error)
}

type DocumentScorer interface {
	ScoreAll(ctx context.Context, appID id.ApplicationID, docs []scoring.Document) ([]scoring.DocumentScore, error)
}

type FairnessRecorder interface {
	Fetch(ctx context.Context) fairness.Input
	Record(ctx context.Context, d decision.Decision, attribution map[string]float64, input fairness.Input) (fairness.Outcome, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// SubmissionGuard gives one caller at a time the right to evaluate an application.
type SubmissionGuard interface {
	Acquire(ctx context.Context, appID id.ApplicationID, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, appID id.ApplicationID, token string) error
}

// Service orchestrates applications and their evaluation.
type Service struct {
	store           Store
	gate            IdentityGate
	scorer          DocumentScorer
	engine          *decision.Engine
	model           ports.RiskModel
	recorder        FairnessRecorder
	auditPublisher  AuditPublisher
	guard           SubmissionGuard
	weights         scoring.Weights
	modelTimeout    time.Duration
	submissionTTL   time.Duration
	logger          *slog.Logger
	metrics         *metrics.Metrics
	decisionMetrics *decisionMetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithDecisionMetrics(m *decisionMetrics.Metrics) Option {
	return func(s *Service) {
		s.decisionMetrics = m
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = p
	}
}

// WithSubmissionGuard replaces the default in-process guard, typically with a RedisGuard.
func WithSubmissionGuard(g SubmissionGuard) Option {
	return func(s *Service) {
		if g != nil {
			s.guard = g
		}
	}
}

func WithWeights(w scoring.Weights) Option {
	return func(s *Service) {
		if len(w) > 0 {
			s.weights = w
		}
	}
}

func WithModelTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.modelTimeout = d
		}
	}
}

func WithSubmissionTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.submissionTTL = d
		}
	}
}

// New constructs a Service. The audit publisher is required for Evaluate,
// Cancel and Delete to emit compliance events; without one they are skipped.
func New(
	store Store,
	gate IdentityGate,
	scorer DocumentScorer,
	engine *decision.Engine,
	model ports.RiskModel,
	recorder FairnessRecorder,
	opts ...Option,
) *Service {
	s := &Service{
		store:         store,
		gate:          gate,
		scorer:        scorer,
		engine:        engine,
		model:         model,
		recorder:      recorder,
		guard:         NewMemoryGuard(),
		weights:       scoring.DefaultWeights(),
		modelTimeout:  defaultModelTimeout,
		submissionTTL: defaultSubmissionTTL,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a DRAFT application for the user.
func (s *Service) Create(ctx context.Context, userID id.UserID, features models.ApplicantFeatures) (*models.Application, error) {
	app, err := models.NewApplication(userID, features, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	if err := s.store.Create(ctx, app); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create application")
	}
	s.metrics.IncrementCreated()
	s.logger.InfoContext(ctx, "application created",
		"application_id", app.ID,
		"number", app.Number,
		"user_id", userID,
	)
	return app, nil
}

// Get returns an application owned by the user. Applications owned by
// someone else are reported as not found.
func (s *Service) Get(ctx context.Context, userID id.UserID, appID id.ApplicationID) (*models.Application, error) {
	app, err := s.store.FindByID(ctx, appID)
	if err != nil {
		return nil, translateStoreError(err, "failed to load application")
	}
	if !app.OwnedBy(userID) {
		return nil, notFound()
	}
	return app, nil
}

func (s *Service) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Application, error) {
	apps, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list applications")
	}
	return apps, nil
}

// Submit moves a DRAFT application to PENDING.
func (s *Service) Submit(ctx context.Context, userID id.UserID, appID id.ApplicationID) (*models.Application, error) {
	return s.transition(ctx, userID, appID, models.StatusPending, func(app *models.Application, now time.Time) error {
		return app.Submit(now)
	})
}

// Cancel moves a non-terminal application to CANCELLED. An evaluation in
// flight finishes its collaborator calls but cannot attach its decision.
func (s *Service) Cancel(ctx context.Context, userID id.UserID, appID id.ApplicationID) (*models.Application, error) {
	var app *models.Application
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		app, err = s.transition(ctx, userID, appID, models.StatusCancelled, func(app *models.Application, now time.Time) error {
			return app.Cancel(now)
		})
		if err != nil {
			return err
		}
		return s.emit(ctx, audit.Event{
			Type:          audit.EventApplicationCancelled,
			UserID:        app.UserID,
			ApplicationID: app.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

// Resubmit creates the next version of a concluded application, PENDING and
// with the same applicant profile.
func (s *Service) Resubmit(ctx context.Context, userID id.UserID, appID id.ApplicationID) (*models.Application, error) {
	current, err := s.Get(ctx, userID, appID)
	if err != nil {
		return nil, err
	}
	next, err := current.NextVersion(requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, next); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "a newer version of this application already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create application version")
	}
	s.metrics.IncrementCreated()
	s.logger.InfoContext(ctx, "application resubmitted",
		"application_id", next.ID,
		"previous_version_id", current.ID,
		"version", next.Version,
	)
	return next, nil
}

// GetDecision returns the decision and fairness record of the user's application.
func (s *Service) GetDecision(ctx context.Context, userID id.UserID, appID id.ApplicationID) (models.DecisionDetails, error) {
	if _, err := s.Get(ctx, userID, appID); err != nil {
		return models.DecisionDetails{}, err
	}
	details, err := s.store.FindDecision(ctx, appID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.DecisionDetails{}, dErrors.New(dErrors.CodeNotFound, "application has no decision yet")
		}
		return models.DecisionDetails{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load decision")
	}
	return details, nil
}

// Delete removes the application with its scores, verifications, decision
// and fairness record.
func (s *Service) Delete(ctx context.Context, userID id.UserID, appID id.ApplicationID) error {
	app, err := s.Get(ctx, userID, appID)
	if err != nil {
		return err
	}
	if app.Status == models.StatusProcessing {
		return dErrors.New(dErrors.CodeInvalidState, "application is being evaluated")
	}
	return s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Delete(ctx, appID); err != nil {
			return translateStoreError(err, "failed to delete application")
		}
		return s.emit(ctx, audit.Event{
			Type:          audit.EventApplicationDeleted,
			UserID:        userID,
			ApplicationID: appID,
		})
	})
}

func (s *Service) transition(ctx context.Context, userID id.UserID, appID id.ApplicationID, target models.Status, apply func(*models.Application, time.Time) error) (*models.Application, error) {
	now := requestcontext.Now(ctx)
	app, err := s.store.Execute(ctx, appID, func(app *models.Application) error {
		if !app.OwnedBy(userID) {
			return notFound()
		}
		return apply(app, now)
	})
	if err != nil {
		return nil, translateStoreError(err, "failed to update application")
	}
	s.metrics.IncrementTransition(string(target))
	s.logger.InfoContext(ctx, "application status changed",
		"application_id", appID,
		"status", target,
	)
	return app, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) error {
	if s.auditPublisher == nil {
		return nil
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}

func notFound() error {
	return dErrors.New(dErrors.CodeNotFound, "application not found")
}

// translateStoreError passes domain errors through and maps sentinels.
func translateStoreError(err error, msg string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return notFound()
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "application was modified concurrently")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
