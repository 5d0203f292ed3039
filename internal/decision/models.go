package decision

import (
	"fmt"
	"math"
	"time"

	"creditengine/internal/scoring"
	id "creditengine/pkg/domain"
)

// Outcome is the credit decision.
type Outcome string

const (
	OutcomeApproved    Outcome = "APPROVED"
	OutcomeConditional Outcome = "CONDITIONAL"
	OutcomeRejected    Outcome = "REJECTED"
)

// RiskLevel mirrors the outcome band.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Source records which signal drove the outcome.
type Source string

const (
	SourceModel             Source = "model"
	SourceCompositeFallback Source = "composite_fallback"
)

// Reason is a machine-readable explanation of the outcome band.
type Reason string

const (
	ReasonModelLowRisk          Reason = "model_low_risk"
	ReasonModelModerateRisk     Reason = "model_moderate_risk"
	ReasonModelHighRisk         Reason = "model_high_risk"
	ReasonCompositeStrong       Reason = "composite_strong"
	ReasonCompositeBorderline   Reason = "composite_borderline"
	ReasonCompositeInsufficient Reason = "composite_insufficient"
)

// Decision is the single credit decision attached to an application.
// Decide fills the scoring fields; ID, CreatedAt and the explainability
// fields are stamped by the caller when the decision is recorded.
type Decision struct {
	ID                  id.DecisionID
	ApplicationID       id.ApplicationID
	Outcome             Outcome
	CreditScore         int
	Confidence          float64
	RiskLevel           RiskLevel
	Reason              Reason
	Source              Source
	MLProbability       *float64
	WeightedTotal       float64
	CategoryScores      map[scoring.Category]float64
	Attribution         map[string]float64
	FairnessUnavailable bool
	ProcessingTime      time.Duration
	CreatedAt           time.Time
}

// ManualReviewAdvised reports the degraded-confidence signal.
func (d Decision) ManualReviewAdvised(p Policy) bool {
	return d.Confidence <= p.FallbackConfidence
}

// Signal is the model input to Decide: either a prediction or an explicit
// statement that the model was unavailable.
type Signal struct {
	available   bool
	probability float64
	confidence  float64
	reason      string
}

// ModelSignal carries the model's risk probability and self-reported confidence.
// A probability outside 0..1 is not a usable prediction and yields an
// unavailable signal, so the composite thresholds apply.
func ModelSignal(probability, confidence float64) Signal {
	if math.IsNaN(probability) || probability < 0 || probability > 1 {
		return NoModelSignal(fmt.Sprintf("model probability %v outside 0..1", probability))
	}
	return Signal{available: true, probability: probability, confidence: confidence}
}

// NoModelSignal records why the model could not be consulted.
func NoModelSignal(reason string) Signal {
	return Signal{reason: reason}
}

func (s Signal) Available() bool      { return s.available }
func (s Signal) Probability() float64 { return s.probability }
func (s Signal) Confidence() float64  { return s.confidence }

// UnavailableReason is empty when the signal is available.
func (s Signal) UnavailableReason() string { return s.reason }

// Policy holds the decision thresholds.
type Policy struct {
	// Model path: p < ApproveBelow approves, p < RejectFrom is conditional.
	ApproveBelow float64
	RejectFrom   float64
	// Composite path: total >= ApproveAtOrAbove approves, >= ConditionalAtOrAbove is conditional.
	ApproveAtOrAbove     float64
	ConditionalAtOrAbove float64
	FallbackConfidence   float64
	MandatoryCategories  []scoring.Category
}

func DefaultPolicy() Policy {
	return Policy{
		ApproveBelow:         0.4,
		RejectFrom:           0.6,
		ApproveAtOrAbove:     70,
		ConditionalAtOrAbove: 60,
		FallbackConfidence:   0.6,
		MandatoryCategories:  append([]scoring.Category(nil), scoring.AllCategories...),
	}
}
