package decision

import (
	"maps"
	"math"
	"strings"

	"creditengine/internal/scoring"
	dErrors "creditengine/pkg/domain-errors"
)

// Engine turns a composite score and a model signal into a Decision. It holds
// only its policy, so Decide is pure and safe to call concurrently.
type Engine struct {
	policy Policy
}

type Option func(*Engine)

func WithPolicy(p Policy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithMandatoryCategories overrides which categories must be present.
func WithMandatoryCategories(cats []scoring.Category) Option {
	return func(e *Engine) {
		if len(cats) > 0 {
			e.policy.MandatoryCategories = append([]scoring.Category(nil), cats...)
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{policy: DefaultPolicy()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Policy() Policy { return e.policy }

// CheckCoverage fails with insufficient_document_coverage when a mandatory
// category has no documents at all.
func (e *Engine) CheckCoverage(present []scoring.Category) error {
	missing := MissingCategories(e.policy.MandatoryCategories, present)
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, len(missing))
	for i, c := range missing {
		names[i] = string(c)
	}
	return dErrors.Newf(dErrors.CodeInsufficientDocumentCoverage,
		"missing mandatory document categories: %s", strings.Join(names, ", "))
}

// Decide computes the decision. The model signal wins when available; otherwise
// the composite thresholds apply with reduced confidence.
func (e *Engine) Decide(composite scoring.CompositeScore, signal Signal) (Decision, error) {
	if err := e.CheckCoverage(composite.Categories()); err != nil {
		return Decision{}, err
	}
	if math.IsNaN(composite.WeightedTotal) {
		return Decision{}, dErrors.New(dErrors.CodeInvariantViolation, "composite total is not a number")
	}

	d := Decision{
		ApplicationID:  composite.ApplicationID,
		CreditScore:    CreditScore(composite.WeightedTotal),
		WeightedTotal:  composite.WeightedTotal,
		CategoryScores: maps.Clone(composite.CategoryScores),
	}

	if signal.Available() {
		p := signal.Probability()
		d.Outcome, d.Reason = EvaluateModel(e.policy, p)
		d.Confidence = clampUnit(signal.Confidence())
		d.Source = SourceModel
		d.MLProbability = &p
	} else {
		d.Outcome, d.Reason = EvaluateComposite(e.policy, composite.WeightedTotal)
		d.Confidence = e.policy.FallbackConfidence
		d.Source = SourceCompositeFallback
	}
	d.RiskLevel = RiskLevelFor(d.Outcome)
	return d, nil
}
