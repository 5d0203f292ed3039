package models

import (
	"creditengine/internal/decision"
	"creditengine/internal/fairness"
)

// DecisionDetails is a recorded decision with its fairness annotation, which
// is nil while fairness metrics are pending backfill.
type DecisionDetails struct {
	Decision decision.Decision
	Fairness *fairness.Record
}
