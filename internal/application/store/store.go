// Package store persists applications and everything recorded about them:
// identity verifications, document scores, the decision and its fairness record.
package store

import (
	"maps"

	"creditengine/internal/decision"
)

// cloneDecision copies the maps so a stored decision never aliases a caller's.
func cloneDecision(d decision.Decision) decision.Decision {
	d.CategoryScores = maps.Clone(d.CategoryScores)
	d.Attribution = maps.Clone(d.Attribution)
	if d.MLProbability != nil {
		p := *d.MLProbability
		d.MLProbability = &p
	}
	return d
}
