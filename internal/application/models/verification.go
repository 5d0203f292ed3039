package models

import (
	"time"

	id "creditengine/pkg/domain"
)

// IdentityVerification is one recorded identity check. Re-verification adds
// a new row; rows are never updated.
type IdentityVerification struct {
	ID                   id.VerificationID `json:"id"`
	ApplicationID        id.ApplicationID  `json:"application_id"`
	ClaimedIDNumber      string            `json:"claimed_id_number"`
	ExtractedIDNumber    string            `json:"extracted_id_number"`
	Confidence           float64           `json:"confidence"`
	Matched              bool              `json:"matched"`
	ManualReviewRequired bool              `json:"manual_review_required"`
	LowConfidence        bool              `json:"low_confidence"`
	VerifiedAt           time.Time         `json:"verified_at"`
}
