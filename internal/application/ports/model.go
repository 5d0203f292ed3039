package ports

import (
	"context"

	"creditengine/internal/application/models"
)

// RiskModel is the credit-risk model as the evaluation pipeline sees it.
// It keeps the service independent of the model's wire format.
type RiskModel interface {
	// Predict returns the default-risk probability and the model's confidence.
	Predict(ctx context.Context, features models.ApplicantFeatures) (Prediction, error)

	// Explain returns per-feature signed contributions to the prediction.
	Explain(ctx context.Context, features models.ApplicantFeatures) (map[string]float64, error)
}

// Prediction is the port model of a risk prediction.
type Prediction struct {
	Probability  float64
	Confidence   float64
	ModelVersion string
}
