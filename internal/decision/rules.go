package decision

import (
	"math"

	"creditengine/internal/scoring"
)

const (
	minCreditScore = 300
	maxCreditScore = 850
)

// CreditScore maps a 0-100 composite total onto the 300-850 scale.
// This is pure domain logic - no I/O, no side effects.
func CreditScore(weightedTotal float64) int {
	if math.IsNaN(weightedTotal) {
		return minCreditScore
	}
	score := int(math.Round(minCreditScore + weightedTotal/100*(maxCreditScore-minCreditScore)))
	return max(minCreditScore, min(maxCreditScore, score))
}

// EvaluateModel bands the model's risk probability.
func EvaluateModel(p Policy, probability float64) (Outcome, Reason) {
	switch {
	case probability < p.ApproveBelow:
		return OutcomeApproved, ReasonModelLowRisk
	case probability < p.RejectFrom:
		return OutcomeConditional, ReasonModelModerateRisk
	default:
		return OutcomeRejected, ReasonModelHighRisk
	}
}

// EvaluateComposite bands the composite total when the model is unavailable.
func EvaluateComposite(p Policy, weightedTotal float64) (Outcome, Reason) {
	switch {
	case weightedTotal >= p.ApproveAtOrAbove:
		return OutcomeApproved, ReasonCompositeStrong
	case weightedTotal >= p.ConditionalAtOrAbove:
		return OutcomeConditional, ReasonCompositeBorderline
	default:
		return OutcomeRejected, ReasonCompositeInsufficient
	}
}

// RiskLevelFor derives the risk level from the outcome band.
func RiskLevelFor(o Outcome) RiskLevel {
	switch o {
	case OutcomeApproved:
		return RiskLow
	case OutcomeConditional:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// MissingCategories returns the mandatory categories absent from present.
func MissingCategories(mandatory []scoring.Category, present []scoring.Category) []scoring.Category {
	have := make(map[scoring.Category]bool, len(present))
	for _, c := range present {
		have[c] = true
	}
	var missing []scoring.Category
	for _, c := range mandatory {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	return missing
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
