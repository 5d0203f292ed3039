// Package ml calls the credit-risk model service: prediction, feature
// attribution, model-level fairness metrics and health.
package ml

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"

	"creditengine/internal/collaborator"
)

// Features is the applicant feature vector in the model's wire format.
type Features struct {
	CodeGender         string  `json:"CODE_GENDER"`
	DaysBirth          int     `json:"DAYS_BIRTH"`
	NameEducationType  string  `json:"NAME_EDUCATION_TYPE"`
	NameFamilyStatus   string  `json:"NAME_FAMILY_STATUS"`
	CntChildren        int     `json:"CNT_CHILDREN"`
	AmtIncomeTotal     float64 `json:"AMT_INCOME_TOTAL"`
	AmtCredit          float64 `json:"AMT_CREDIT"`
	AmtAnnuity         float64 `json:"AMT_ANNUITY"`
	AmtGoodsPrice      float64 `json:"AMT_GOODS_PRICE"`
	DaysEmployed       int     `json:"DAYS_EMPLOYED"`
	OccupationType     string  `json:"OCCUPATION_TYPE"`
	OrganizationType   string  `json:"ORGANIZATION_TYPE"`
	NameContractType   string  `json:"NAME_CONTRACT_TYPE"`
	NameIncomeType     string  `json:"NAME_INCOME_TYPE"`
	NameHousingType    string  `json:"NAME_HOUSING_TYPE"`
	FlagOwnCar         string  `json:"FLAG_OWN_CAR"`
	FlagOwnRealty      string  `json:"FLAG_OWN_REALTY"`
	RegionRatingClient int     `json:"REGION_RATING_CLIENT"`
	ExtSource1         float64 `json:"EXT_SOURCE_1"`
	ExtSource2         float64 `json:"EXT_SOURCE_2"`
	ExtSource3         float64 `json:"EXT_SOURCE_3"`
}

// Prediction is the model's default-risk estimate.
type Prediction struct {
	Probability  float64
	Confidence   float64
	ModelVersion string
}

// FairnessMetrics are model-level group fairness figures for one protected attribute.
type FairnessMetrics struct {
	DemographicParity     float64 `json:"demographic_parity"`
	EqualOpportunity      float64 `json:"equal_opportunity"`
	DisparateImpact       float64 `json:"disparate_impact"`
	AverageOddsDifference float64 `json:"average_odds_difference"`
	FairnessScore         float64 `json:"fairness_score"`
}

type predictResponse struct {
	PredictionProbability *float64 `json:"prediction_probability"`
	Confidence            *float64 `json:"confidence"`
	ModelVersion          string   `json:"model_version"`
}

type healthResponse struct {
	Healthy *bool  `json:"healthy"`
	Status  string `json:"status"`
}

type Client struct {
	http *collaborator.Client
}

func New(http *collaborator.Client) *Client {
	return &Client{http: http}
}

func (c *Client) Predict(ctx context.Context, f Features) (Prediction, error) {
	body, err := c.http.PostJSON(ctx, "predict", "/predict", f)
	if err != nil {
		return Prediction{}, err
	}
	resp, err := collaborator.Decode[predictResponse](c.http, body)
	if err != nil {
		return Prediction{}, err
	}
	if resp.PredictionProbability == nil || resp.Confidence == nil {
		return Prediction{}, collaborator.NewError(collaborator.ErrorContractMismatch, c.http.Name(),
			"prediction response missing probability or confidence", nil)
	}
	if !unitInterval(*resp.PredictionProbability) || !unitInterval(*resp.Confidence) {
		return Prediction{}, collaborator.NewError(collaborator.ErrorBadData, c.http.Name(),
			fmt.Sprintf("prediction outside 0..1: probability=%v confidence=%v", *resp.PredictionProbability, *resp.Confidence), nil)
	}
	return Prediction{
		Probability:  *resp.PredictionProbability,
		Confidence:   *resp.Confidence,
		ModelVersion: resp.ModelVersion,
	}, nil
}

// Explain returns per-feature signed contributions (SHAP values).
func (c *Client) Explain(ctx context.Context, f Features) (map[string]float64, error) {
	body, err := c.http.PostJSON(ctx, "explain", "/explain", f)
	if err != nil {
		return nil, err
	}
	return collaborator.Decode[map[string]float64](c.http, body)
}

func (c *Client) Fairness(ctx context.Context, protectedAttribute string) (FairnessMetrics, error) {
	body, err := c.http.Get(ctx, "fairness", "/fairness", url.Values{"protected_attribute": {protectedAttribute}})
	if err != nil {
		return FairnessMetrics{}, err
	}
	return collaborator.Decode[FairnessMetrics](c.http, body)
}

// IsAvailable accepts both health payload shapes the model service has shipped:
// {"healthy": true} and {"status": "healthy"}.
func (c *Client) IsAvailable(ctx context.Context) bool {
	body, err := c.http.Get(ctx, "health", "/health", nil)
	if err != nil {
		return false
	}
	resp, err := collaborator.Decode[healthResponse](c.http, body)
	if err != nil {
		return false
	}
	if resp.Healthy != nil {
		return *resp.Healthy
	}
	return strings.EqualFold(resp.Status, "healthy")
}

func unitInterval(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
