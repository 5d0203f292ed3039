package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	id "creditengine/pkg/domain"
	dErrors "creditengine/pkg/domain-errors"
)

// Application is the aggregate root of a credit request.
//
// Invariants:
//   - Status moves forward only: DRAFT → PENDING → PROCESSING → APPROVED | REJECTED | UNDER_REVIEW
//   - CANCELLED is reachable from DRAFT, PENDING and PROCESSING
//   - DecisionID is set at most once, together with the final status
//   - Number is shared by every version of the same request
type Application struct {
	ID                id.ApplicationID  `json:"id"`
	UserID            id.UserID         `json:"user_id"`
	Number            string            `json:"number"`
	Version           int               `json:"version"`
	PreviousVersionID *id.ApplicationID `json:"previous_version_id,omitempty"`
	Status            Status            `json:"status"`
	Features          ApplicantFeatures `json:"features"`
	DecisionID        *id.DecisionID    `json:"decision_id,omitempty"`
	CreditScore       *int              `json:"credit_score,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	SubmittedAt       *time.Time        `json:"submitted_at,omitempty"`
	ProcessedAt       *time.Time        `json:"processed_at,omitempty"`
}

// GenerateNumber returns a human-facing reference such as APP-3F9A1C0B.
func GenerateNumber() string {
	return "APP-" + strings.ToUpper(uuid.NewString()[:8])
}

func NewApplication(userID id.UserID, features ApplicantFeatures, now time.Time) (*Application, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "application requires an owner")
	}
	features.Normalize()
	if err := features.Validate(); err != nil {
		return nil, err
	}
	return &Application{
		ID:        id.NewApplicationID(),
		UserID:    userID,
		Number:    GenerateNumber(),
		Version:   1,
		Status:    StatusDraft,
		Features:  features,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (a *Application) OwnedBy(userID id.UserID) bool {
	return a.UserID == userID
}

func (a *Application) HasDecision() bool {
	return a.DecisionID != nil
}

func (a *Application) transition(next Status, now time.Time) error {
	if !a.Status.CanTransitionTo(next) {
		return dErrors.Newf(dErrors.CodeInvalidState, "application cannot move from %s to %s", a.Status, next)
	}
	a.Status = next
	a.UpdatedAt = now
	return nil
}

// Submit moves a draft to PENDING.
func (a *Application) Submit(now time.Time) error {
	if err := a.transition(StatusPending, now); err != nil {
		return err
	}
	a.SubmittedAt = &now
	return nil
}

// StartProcessing claims a pending application for evaluation.
func (a *Application) StartProcessing(now time.Time) error {
	return a.transition(StatusProcessing, now)
}

func (a *Application) Cancel(now time.Time) error {
	return a.transition(StatusCancelled, now)
}

// Conclude records the decision and the final status in one step.
func (a *Application) Conclude(decisionID id.DecisionID, creditScore int, final Status, now time.Time) error {
	if a.HasDecision() {
		return dErrors.New(dErrors.CodeDuplicateDecision, "application already has a decision")
	}
	switch final {
	case StatusApproved, StatusRejected, StatusUnderReview:
	default:
		return dErrors.Newf(dErrors.CodeInvariantViolation, "%s is not a decision status", final)
	}
	if err := a.transition(final, now); err != nil {
		return err
	}
	a.DecisionID = &decisionID
	a.CreditScore = &creditScore
	a.ProcessedAt = &now
	return nil
}

// Escalate moves an application whose evaluation failed to UNDER_REVIEW
// without a decision, so it is not left in PROCESSING.
func (a *Application) Escalate(now time.Time) error {
	if a.Status != StatusProcessing {
		return dErrors.Newf(dErrors.CodeInvalidState, "only processing applications can be escalated, status is %s", a.Status)
	}
	return a.transition(StatusUnderReview, now)
}

// NextVersion creates a PENDING resubmission of a concluded application.
func (a *Application) NextVersion(now time.Time) (*Application, error) {
	if !a.Status.IsTerminal() {
		return nil, dErrors.Newf(dErrors.CodeInvalidState, "only concluded applications can be resubmitted, status is %s", a.Status)
	}
	prev := a.ID
	return &Application{
		ID:                id.NewApplicationID(),
		UserID:            a.UserID,
		Number:            a.Number,
		Version:           a.Version + 1,
		PreviousVersionID: &prev,
		Status:            StatusPending,
		Features:          a.Features,
		CreatedAt:         now,
		UpdatedAt:         now,
		SubmittedAt:       &now,
	}, nil
}

// Clone returns a deep copy so stores never share pointers with callers.
func (a *Application) Clone() *Application {
	c := *a
	if a.PreviousVersionID != nil {
		v := *a.PreviousVersionID
		c.PreviousVersionID = &v
	}
	if a.DecisionID != nil {
		v := *a.DecisionID
		c.DecisionID = &v
	}
	if a.CreditScore != nil {
		v := *a.CreditScore
		c.CreditScore = &v
	}
	if a.SubmittedAt != nil {
		v := *a.SubmittedAt
		c.SubmittedAt = &v
	}
	if a.ProcessedAt != nil {
		v := *a.ProcessedAt
		c.ProcessedAt = &v
	}
	return &c
}
