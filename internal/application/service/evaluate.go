package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"creditengine/internal/application/models"
	"creditengine/internal/application/ports"
	"creditengine/internal/audit"
	"creditengine/internal/collaborator"
	"creditengine/internal/decision"
	"creditengine/internal/fairness"
	"creditengine/internal/identity"
	"creditengine/internal/scoring"
	id "creditengine/pkg/domain"
	dErrors "creditengine/pkg/domain-errors"
	"creditengine/pkg/platform/sentinel"
	"creditengine/pkg/requestcontext"
)

var tracer = otel.Tracer("creditengine/application")

// EvaluateRequest carries everything an evaluation needs besides the
// application itself.
type EvaluateRequest struct {
	ClaimedID     string
	IdentityImage []byte
	Documents     []scoring.Document
}

// EvaluationResult is the concluded application with its decision.
type EvaluationResult struct {
	Application *models.Application
	Decision    decision.Decision
	Fairness    *fairness.Record
	Identity    identity.Result
	// ManualReviewRequired is set when the identity check could not be
	// completed automatically or the decision confidence is degraded.
	ManualReviewRequired bool
}

type modelOutputs struct {
	signal      decision.Signal
	attribution map[string]float64
	fairness    fairness.Input
}

// Evaluate runs the decision pipeline for a PENDING application and attaches
// exactly one decision to it.
//
// Coverage and identity failures leave the application PENDING. Once the
// application is claimed for processing, an infrastructure failure moves it
// to UNDER_REVIEW and the error is returned. Collaborator outages never fail
// the evaluation: they degrade to the documented fallbacks.
func (s *Service) Evaluate(ctx context.Context, userID id.UserID, appID id.ApplicationID, req EvaluateRequest) (*EvaluationResult, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "application.evaluate",
		trace.WithAttributes(attribute.String("application.id", appID.String())),
	)
	defer span.End()

	result, err := s.evaluate(ctx, userID, appID, req)
	if err != nil {
		code := dErrors.CodeOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(code))
		s.metrics.IncrementEvaluationError(string(code))
		if code == dErrors.CodeDuplicateDecision {
			s.metrics.IncrementDuplicate()
		}
		return nil, err
	}

	elapsed := time.Since(start)
	s.decisionMetrics.ObserveEvaluateLatency(elapsed)
	s.decisionMetrics.IncrementOutcome(string(result.Decision.Outcome), string(result.Decision.Source), result.Decision.CreditScore)
	span.SetAttributes(
		attribute.String("decision.outcome", string(result.Decision.Outcome)),
		attribute.Int("decision.credit_score", result.Decision.CreditScore),
	)
	s.logger.InfoContext(ctx, "application evaluated",
		"application_id", appID,
		"decision_id", result.Decision.ID,
		"outcome", result.Decision.Outcome,
		"credit_score", result.Decision.CreditScore,
		"source", result.Decision.Source,
		"status", result.Application.Status,
		"duration_ms", elapsed.Milliseconds(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return result, nil
}

func (s *Service) evaluate(ctx context.Context, userID id.UserID, appID id.ApplicationID, req EvaluateRequest) (*EvaluationResult, error) {
	start := time.Now()

	app, err := s.Get(ctx, userID, appID)
	if err != nil {
		return nil, err
	}
	if app.HasDecision() {
		return nil, dErrors.New(dErrors.CodeDuplicateDecision, "application already has a decision")
	}
	if app.Status == models.StatusProcessing {
		return nil, dErrors.New(dErrors.CodeDuplicateDecision, "application is already being evaluated")
	}
	if app.Status != models.StatusPending {
		return nil, dErrors.Newf(dErrors.CodeInvalidState, "application must be %s to be evaluated, status is %s", models.StatusPending, app.Status)
	}

	present, err := documentCategories(req.Documents)
	if err != nil {
		return nil, err
	}
	if err := s.engine.CheckCoverage(present); err != nil {
		return nil, err
	}

	verified, err := s.verifyIdentity(ctx, appID, req)
	if err != nil {
		return nil, err
	}

	token, err := s.claim(ctx, userID, appID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := s.guard.Release(context.WithoutCancel(ctx), appID, token); err != nil {
			s.logger.WarnContext(ctx, "failed to release submission guard",
				"application_id", appID,
				"error", err,
			)
		}
	}()

	result, err := s.decide(ctx, app, verified, req, start)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeApplicationCancelled) && !dErrors.HasCode(err, dErrors.CodeDuplicateDecision) {
			s.escalate(ctx, appID, err)
		}
		return nil, err
	}
	return result, nil
}

// verifyIdentity runs the gate and persists what it found, including a mismatch.
func (s *Service) verifyIdentity(ctx context.Context, appID id.ApplicationID, req EvaluateRequest) (identity.Result, error) {
	ctx, end := s.stage(ctx, "identity")
	defer end()

	result, verifyErr := s.gate.Verify(ctx, req.ClaimedID, req.IdentityImage)
	if verifyErr != nil && !dErrors.HasCode(verifyErr, dErrors.CodeIdentityMismatch) {
		return identity.Result{}, verifyErr
	}
	record := models.IdentityVerification{
		ID:                   id.NewVerificationID(),
		ApplicationID:        appID,
		ClaimedIDNumber:      result.ClaimedIDNumber,
		ExtractedIDNumber:    result.ExtractedIDNumber,
		Confidence:           result.Confidence,
		Matched:              result.Matched,
		ManualReviewRequired: result.ManualReviewRequired,
		LowConfidence:        result.LowConfidence,
		VerifiedAt:           result.VerifiedAt,
	}
	if err := s.store.SaveVerification(ctx, record); err != nil {
		return identity.Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record identity verification")
	}
	if verifyErr != nil {
		return identity.Result{}, verifyErr
	}
	return result, nil
}

// claim takes the submission guard and moves the application to PROCESSING.
// Losing either race is reported as a duplicate decision attempt.
func (s *Service) claim(ctx context.Context, userID id.UserID, appID id.ApplicationID) (string, error) {
	token, ok, err := s.guard.Acquire(ctx, appID, s.submissionTTL)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to acquire submission guard")
	}
	if !ok {
		return "", dErrors.New(dErrors.CodeDuplicateDecision, "application is already being evaluated")
	}

	_, err = s.transition(ctx, userID, appID, models.StatusProcessing, func(app *models.Application, now time.Time) error {
		if app.HasDecision() {
			return dErrors.New(dErrors.CodeDuplicateDecision, "application already has a decision")
		}
		if app.Status != models.StatusPending {
			return dErrors.Newf(dErrors.CodeDuplicateDecision, "application is %s, evaluation already claimed", app.Status)
		}
		return app.StartProcessing(now)
	})
	if err != nil {
		if relErr := s.guard.Release(context.WithoutCancel(ctx), appID, token); relErr != nil {
			s.logger.WarnContext(ctx, "failed to release submission guard",
				"application_id", appID,
				"error", relErr,
			)
		}
		return "", err
	}
	return token, nil
}

// decide runs everything after the claim: scoring, model calls, the decision
// and its atomic attachment.
func (s *Service) decide(ctx context.Context, app *models.Application, verified identity.Result, req EvaluateRequest, start time.Time) (*EvaluationResult, error) {
	composite, err := s.score(ctx, app.ID, req.Documents)
	if err != nil {
		return nil, err
	}

	outputs := s.consultModel(ctx, app)

	d, err := s.engine.Decide(composite, outputs.signal)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decision could not be computed")
	}
	d.ID = id.NewDecisionID()
	d.ApplicationID = app.ID
	d.CreatedAt = requestcontext.Now(ctx)
	d.ProcessingTime = time.Since(start)

	recorded, err := s.recorder.Record(ctx, d, outputs.attribution, outputs.fairness)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record decision explanation")
	}
	d = recorded.Decision

	manualReview := verified.ManualReviewRequired || d.ManualReviewAdvised(s.engine.Policy())
	final := FinalStatus(d.Outcome, manualReview)
	concluded, err := s.attach(ctx, app, d, recorded.Record, final)
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementTransition(string(final))

	return &EvaluationResult{
		Application:          concluded,
		Decision:             d,
		Fairness:             recorded.Record,
		Identity:             verified,
		ManualReviewRequired: manualReview,
	}, nil
}

func (s *Service) score(ctx context.Context, appID id.ApplicationID, docs []scoring.Document) (scoring.CompositeScore, error) {
	ctx, end := s.stage(ctx, "scoring")
	defer end()

	scores, err := s.scorer.ScoreAll(ctx, appID, docs)
	if err != nil {
		return scoring.CompositeScore{}, dErrors.Wrap(err, dErrors.CodeInternal, "document scoring interrupted")
	}
	if err := s.store.SaveDocumentScores(ctx, scores); err != nil {
		return scoring.CompositeScore{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record document scores")
	}
	composite := scoring.AggregateDocuments(s.weights, scores)
	composite.ApplicationID = appID
	composite.ComputedAt = requestcontext.Now(ctx)
	return composite, nil
}

// consultModel calls predict, explain and fairness concurrently under the
// model timeout. Each failure degrades independently.
func (s *Service) consultModel(ctx context.Context, app *models.Application) modelOutputs {
	ctx, end := s.stage(ctx, "model")
	defer end()

	ctx, cancel := context.WithTimeout(ctx, s.modelTimeout)
	defer cancel()

	var (
		prediction  ports.Prediction
		predictErr  error
		attribution map[string]float64
		fairInput   fairness.Input
	)
	var g errgroup.Group
	g.Go(func() error {
		prediction, predictErr = s.model.Predict(ctx, app.Features)
		return nil
	})
	g.Go(func() error {
		explained, err := s.model.Explain(ctx, app.Features)
		if err != nil {
			s.logger.WarnContext(ctx, "feature attribution unavailable",
				"application_id", app.ID,
				"error", err,
			)
			return nil
		}
		attribution = explained
		return nil
	})
	g.Go(func() error {
		fairInput = s.recorder.Fetch(ctx)
		return nil
	})
	_ = g.Wait()

	out := modelOutputs{attribution: attribution, fairness: fairInput}
	if predictErr != nil {
		reason := fmt.Sprintf("risk model unavailable: %s", collaborator.CategoryOf(predictErr))
		s.logger.WarnContext(ctx, "falling back to composite decision",
			"application_id", app.ID,
			"reason", reason,
			"error", predictErr,
		)
		out.signal = decision.NoModelSignal(reason)
		return out
	}
	out.signal = decision.ModelSignal(prediction.Probability, prediction.Confidence)
	if !out.signal.Available() {
		s.logger.WarnContext(ctx, "falling back to composite decision",
			"application_id", app.ID,
			"reason", out.signal.UnavailableReason(),
		)
	}
	return out
}

// attach stores the decision and the final status in one transaction with
// the decision_made audit event.
func (s *Service) attach(ctx context.Context, app *models.Application, d decision.Decision, rec *fairness.Record, final models.Status) (*models.Application, error) {
	ctx, end := s.stage(ctx, "attach")
	defer end()

	var concluded *models.Application
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		concluded, err = s.store.AttachDecision(ctx, app.ID, d, rec, func(current *models.Application) error {
			if current.Status == models.StatusCancelled {
				return dErrors.New(dErrors.CodeApplicationCancelled, "application was cancelled during evaluation")
			}
			return current.Conclude(d.ID, d.CreditScore, final, requestcontext.Now(ctx))
		})
		if err != nil {
			return err
		}
		return s.emit(ctx, audit.Event{
			Type:          audit.EventDecisionMade,
			UserID:        app.UserID,
			ApplicationID: app.ID,
			DecisionID:    d.ID,
			Outcome:       string(d.Outcome),
			CreditScore:   d.CreditScore,
			Confidence:    d.Confidence,
			Source:        string(d.Source),
			Reason:        string(d.Reason),
		})
	})
	if err != nil {
		var de *dErrors.Error
		switch {
		case errors.As(err, &de):
			return nil, err
		case errors.Is(err, sentinel.ErrConflict):
			return nil, dErrors.New(dErrors.CodeDuplicateDecision, "application already has a decision")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to attach decision")
		}
	}
	if d.Source == decision.SourceCompositeFallback {
		s.logger.WarnContext(ctx, "decision made without risk model",
			"application_id", app.ID,
			"decision_id", d.ID,
			"confidence", d.Confidence,
		)
	}
	return concluded, nil
}

// escalate moves a claimed application to UNDER_REVIEW after a failure. It
// is best effort and runs even when ctx is already cancelled.
func (s *Service) escalate(ctx context.Context, appID id.ApplicationID, cause error) {
	ctx = context.WithoutCancel(ctx)
	now := requestcontext.Now(ctx)
	_, err := s.store.Execute(ctx, appID, func(app *models.Application) error {
		return app.Escalate(now)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to escalate application after evaluation error",
			"application_id", appID,
			"cause", cause,
			"error", err,
		)
		return
	}
	s.metrics.IncrementTransition(string(models.StatusUnderReview))
	s.logger.ErrorContext(ctx, "evaluation failed, application escalated to manual review",
		"application_id", appID,
		"error", cause,
	)
}

// stage opens a span for one pipeline stage and records its latency on end.
func (s *Service) stage(ctx context.Context, name string) (context.Context, func()) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "application.evaluate."+name)
	return ctx, func() {
		s.decisionMetrics.ObserveStageLatency(name, time.Since(start))
		span.End()
	}
}

// FinalStatus maps a decision outcome to the application status. Manual review,
// whether demanded by the identity gate or advised by a low-confidence
// decision, always lands in UNDER_REVIEW.
func FinalStatus(outcome decision.Outcome, manualReview bool) models.Status {
	if manualReview {
		return models.StatusUnderReview
	}
	switch outcome {
	case decision.OutcomeApproved:
		return models.StatusApproved
	case decision.OutcomeRejected:
		return models.StatusRejected
	default:
		return models.StatusUnderReview
	}
}

func documentCategories(docs []scoring.Document) ([]scoring.Category, error) {
	seen := make(map[scoring.Category]bool, len(scoring.AllCategories))
	present := make([]scoring.Category, 0, len(scoring.AllCategories))
	for _, doc := range docs {
		if !doc.Category.IsValid() {
			return nil, dErrors.Newf(dErrors.CodeValidation, "unknown document category %q", doc.Category)
		}
		if !seen[doc.Category] {
			seen[doc.Category] = true
			present = append(present, doc.Category)
		}
	}
	return present, nil
}
