package handler

import (
	"time"

	"creditengine/internal/application/models"
	"creditengine/internal/application/service"
	"creditengine/internal/decision"
	"creditengine/internal/fairness"
)

// ApplicationResponse is the HTTP view of an application.
type ApplicationResponse struct {
	ID                string                   `json:"id"`
	Number            string                   `json:"number"`
	Version           int                      `json:"version"`
	PreviousVersionID string                   `json:"previous_version_id,omitempty"`
	Status            string                   `json:"status"`
	Features          models.ApplicantFeatures `json:"features"`
	DecisionID        string                   `json:"decision_id,omitempty"`
	CreditScore       *int                     `json:"credit_score,omitempty"`
	CreatedAt         time.Time                `json:"created_at"`
	UpdatedAt         time.Time                `json:"updated_at"`
	SubmittedAt       *time.Time               `json:"submitted_at,omitempty"`
	ProcessedAt       *time.Time               `json:"processed_at,omitempty"`
}

type ListApplicationsResponse struct {
	Applications []ApplicationResponse `json:"applications"`
}

// DecisionResponse is the HTTP view of a decision and its fairness record.
type DecisionResponse struct {
	ID                  string             `json:"id"`
	ApplicationID       string             `json:"application_id"`
	Outcome             string             `json:"outcome"`
	CreditScore         int                `json:"credit_score"`
	Confidence          float64            `json:"confidence"`
	RiskLevel           string             `json:"risk_level"`
	Reason              string             `json:"reason"`
	Source              string             `json:"source"`
	MLProbability       *float64           `json:"ml_probability,omitempty"`
	WeightedTotal       float64            `json:"weighted_total"`
	CategoryScores      map[string]float64 `json:"category_scores"`
	Attribution         map[string]float64 `json:"attribution"`
	FairnessUnavailable bool               `json:"fairness_unavailable"`
	Fairness            *FairnessResponse  `json:"fairness,omitempty"`
	ProcessingTimeMs    int64              `json:"processing_time_ms"`
	CreatedAt           time.Time          `json:"created_at"`
}

type FairnessResponse struct {
	ProtectedAttribute string `json:"protected_attribute"`
	fairness.Metrics
	RecordedAt time.Time `json:"recorded_at"`
}

type IdentityResponse struct {
	Matched              bool    `json:"matched"`
	Confidence           float64 `json:"confidence"`
	LowConfidence        bool    `json:"low_confidence"`
	ManualReviewRequired bool    `json:"manual_review_required"`
}

// EvaluationResponse is the HTTP response for POST /applications/{id}/evaluate.
type EvaluationResponse struct {
	Application          ApplicationResponse `json:"application"`
	Decision             DecisionResponse    `json:"decision"`
	Identity             IdentityResponse    `json:"identity"`
	ManualReviewRequired bool                `json:"manual_review_required"`
}

func toApplicationResponse(app *models.Application) ApplicationResponse {
	resp := ApplicationResponse{
		ID:          app.ID.String(),
		Number:      app.Number,
		Version:     app.Version,
		Status:      string(app.Status),
		Features:    app.Features,
		CreditScore: app.CreditScore,
		CreatedAt:   app.CreatedAt,
		UpdatedAt:   app.UpdatedAt,
		SubmittedAt: app.SubmittedAt,
		ProcessedAt: app.ProcessedAt,
	}
	if app.PreviousVersionID != nil {
		resp.PreviousVersionID = app.PreviousVersionID.String()
	}
	if app.DecisionID != nil {
		resp.DecisionID = app.DecisionID.String()
	}
	return resp
}

func toListResponse(apps []*models.Application) ListApplicationsResponse {
	out := ListApplicationsResponse{Applications: make([]ApplicationResponse, 0, len(apps))}
	for _, app := range apps {
		out.Applications = append(out.Applications, toApplicationResponse(app))
	}
	return out
}

func toDecisionResponse(d decision.Decision, rec *fairness.Record) DecisionResponse {
	scores := make(map[string]float64, len(d.CategoryScores))
	for cat, v := range d.CategoryScores {
		scores[string(cat)] = v
	}
	attribution := d.Attribution
	if attribution == nil {
		attribution = map[string]float64{}
	}
	resp := DecisionResponse{
		ID:                  d.ID.String(),
		ApplicationID:       d.ApplicationID.String(),
		Outcome:             string(d.Outcome),
		CreditScore:         d.CreditScore,
		Confidence:          d.Confidence,
		RiskLevel:           string(d.RiskLevel),
		Reason:              string(d.Reason),
		Source:              string(d.Source),
		MLProbability:       d.MLProbability,
		WeightedTotal:       d.WeightedTotal,
		CategoryScores:      scores,
		Attribution:         attribution,
		FairnessUnavailable: d.FairnessUnavailable,
		ProcessingTimeMs:    d.ProcessingTime.Milliseconds(),
		CreatedAt:           d.CreatedAt,
	}
	if rec != nil {
		resp.Fairness = &FairnessResponse{
			ProtectedAttribute: rec.ProtectedAttribute,
			Metrics:            rec.Metrics,
			RecordedAt:         rec.RecordedAt,
		}
	}
	return resp
}

func toEvaluationResponse(result *service.EvaluationResult) EvaluationResponse {
	return EvaluationResponse{
		Application: toApplicationResponse(result.Application),
		Decision:    toDecisionResponse(result.Decision, result.Fairness),
		Identity: IdentityResponse{
			Matched:              result.Identity.Matched,
			Confidence:           result.Identity.Confidence,
			LowConfidence:        result.Identity.LowConfidence,
			ManualReviewRequired: result.Identity.ManualReviewRequired,
		},
		ManualReviewRequired: result.ManualReviewRequired,
	}
}
