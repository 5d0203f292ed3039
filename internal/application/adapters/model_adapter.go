package adapters

import (
	"context"

	"creditengine/internal/application/models"
	"creditengine/internal/application/ports"
	"creditengine/internal/collaborator/ml"
)

// ModelClient is the subset of the ML collaborator client the adapter uses.
type ModelClient interface {
	Predict(ctx context.Context, f ml.Features) (ml.Prediction, error)
	Explain(ctx context.Context, f ml.Features) (map[string]float64, error)
}

// RiskModelAdapter implements ports.RiskModel over the ML HTTP client.
type RiskModelAdapter struct {
	client ModelClient
}

func NewRiskModelAdapter(client ModelClient) ports.RiskModel {
	return &RiskModelAdapter{client: client}
}

func (a *RiskModelAdapter) Predict(ctx context.Context, features models.ApplicantFeatures) (ports.Prediction, error) {
	p, err := a.client.Predict(ctx, ToModelFeatures(features))
	if err != nil {
		return ports.Prediction{}, err
	}
	return ports.Prediction{
		Probability:  p.Probability,
		Confidence:   p.Confidence,
		ModelVersion: p.ModelVersion,
	}, nil
}

func (a *RiskModelAdapter) Explain(ctx context.Context, features models.ApplicantFeatures) (map[string]float64, error) {
	return a.client.Explain(ctx, ToModelFeatures(features))
}

// ToModelFeatures maps the applicant profile onto the model's column names.
func ToModelFeatures(f models.ApplicantFeatures) ml.Features {
	return ml.Features{
		CodeGender:         f.Gender,
		DaysBirth:          f.DaysBirth,
		NameEducationType:  f.EducationType,
		NameFamilyStatus:   f.FamilyStatus,
		CntChildren:        f.Children,
		AmtIncomeTotal:     f.IncomeTotal,
		AmtCredit:          f.CreditAmount,
		AmtAnnuity:         f.Annuity,
		AmtGoodsPrice:      f.GoodsPrice,
		DaysEmployed:       f.DaysEmployed,
		OccupationType:     f.OccupationType,
		OrganizationType:   f.OrganizationType,
		NameContractType:   f.ContractType,
		NameIncomeType:     f.IncomeType,
		NameHousingType:    f.HousingType,
		FlagOwnCar:         yesNo(f.OwnCar),
		FlagOwnRealty:      yesNo(f.OwnRealty),
		RegionRatingClient: f.RegionRatingClient,
		ExtSource1:         f.ExtSource1,
		ExtSource2:         f.ExtSource2,
		ExtSource3:         f.ExtSource3,
	}
}

func yesNo(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}
