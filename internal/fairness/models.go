// Package fairness attaches model explanations and group fairness metrics to
// credit decisions.
package fairness

import (
	"math"
	"time"

	"creditengine/internal/decision"
	id "creditengine/pkg/domain"
	dErrors "creditengine/pkg/domain-errors"
)

// Metrics are model-level fairness figures for one protected attribute.
type Metrics struct {
	DemographicParity     float64 `json:"demographic_parity"`
	EqualOpportunity      float64 `json:"equal_opportunity"`
	DisparateImpact       float64 `json:"disparate_impact"`
	AverageOddsDifference float64 `json:"average_odds_difference"`
	FairnessScore         float64 `json:"fairness_score"`
}

// Validate requires finite figures and a fairness score within 0..100.
func (m Metrics) Validate() error {
	for name, v := range map[string]float64{
		"demographic_parity":      m.DemographicParity,
		"equal_opportunity":       m.EqualOpportunity,
		"disparate_impact":        m.DisparateImpact,
		"average_odds_difference": m.AverageOddsDifference,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return dErrors.Newf(dErrors.CodeInvariantViolation, "fairness metric %s is not a finite number", name)
		}
	}
	if math.IsNaN(m.FairnessScore) || m.FairnessScore < 0 || m.FairnessScore > 100 {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "fairness score %v outside 0..100", m.FairnessScore)
	}
	return nil
}

// Input is either measured metrics or the reason they could not be obtained.
type Input struct {
	metrics   Metrics
	available bool
	reason    string
}

func Measured(m Metrics) Input {
	return Input{metrics: m, available: true}
}

func Unavailable(reason string) Input {
	return Input{reason: reason}
}

func (i Input) Available() bool  { return i.available }
func (i Input) Metrics() Metrics { return i.metrics }
func (i Input) Reason() string   { return i.reason }

// Record is the fairness annotation of one decision.
type Record struct {
	DecisionID         id.DecisionID
	ProtectedAttribute string
	Metrics
	RecordedAt time.Time
}

// Outcome is a decision with its explanation filled in, plus its fairness
// record when metrics were available.
type Outcome struct {
	Decision decision.Decision
	Record   *Record
}
