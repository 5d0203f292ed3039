package models

import (
	"math"
	"strings"

	dErrors "creditengine/pkg/domain-errors"
)

// ApplicantFeatures is the tabular applicant profile the risk model predicts
// from. Day counts are negative offsets from the application date.
type ApplicantFeatures struct {
	Gender             string  `json:"gender"`
	DaysBirth          int     `json:"days_birth"`
	EducationType      string  `json:"education_type"`
	FamilyStatus       string  `json:"family_status"`
	Children           int     `json:"children"`
	IncomeTotal        float64 `json:"income_total"`
	CreditAmount       float64 `json:"credit_amount"`
	Annuity            float64 `json:"annuity"`
	GoodsPrice         float64 `json:"goods_price"`
	DaysEmployed       int     `json:"days_employed"`
	OccupationType     string  `json:"occupation_type"`
	OrganizationType   string  `json:"organization_type"`
	ContractType       string  `json:"contract_type"`
	IncomeType         string  `json:"income_type"`
	HousingType        string  `json:"housing_type"`
	OwnCar             bool    `json:"own_car"`
	OwnRealty          bool    `json:"own_realty"`
	RegionRatingClient int     `json:"region_rating_client"`
	ExtSource1         float64 `json:"ext_source_1"`
	ExtSource2         float64 `json:"ext_source_2"`
	ExtSource3         float64 `json:"ext_source_3"`
}

// Normalize trims categorical fields and uppercases the gender code.
func (f *ApplicantFeatures) Normalize() {
	f.Gender = strings.ToUpper(strings.TrimSpace(f.Gender))
	for _, s := range []*string{
		&f.EducationType, &f.FamilyStatus, &f.OccupationType, &f.OrganizationType,
		&f.ContractType, &f.IncomeType, &f.HousingType,
	} {
		*s = strings.TrimSpace(*s)
	}
}

func (f ApplicantFeatures) Validate() error {
	switch f.Gender {
	case "M", "F", "XNA":
	default:
		return dErrors.New(dErrors.CodeValidation, "gender must be M, F or XNA")
	}
	if f.DaysBirth >= 0 {
		return dErrors.New(dErrors.CodeValidation, "days_birth must be negative")
	}
	if f.Children < 0 {
		return dErrors.New(dErrors.CodeValidation, "children cannot be negative")
	}
	if !positive(f.IncomeTotal) {
		return dErrors.New(dErrors.CodeValidation, "income_total must be positive")
	}
	if !positive(f.CreditAmount) {
		return dErrors.New(dErrors.CodeValidation, "credit_amount must be positive")
	}
	if !nonNegative(f.Annuity) || !nonNegative(f.GoodsPrice) {
		return dErrors.New(dErrors.CodeValidation, "annuity and goods_price cannot be negative")
	}
	if f.RegionRatingClient < 1 || f.RegionRatingClient > 3 {
		return dErrors.New(dErrors.CodeValidation, "region_rating_client must be 1, 2 or 3")
	}
	for name, v := range map[string]float64{
		"ext_source_1": f.ExtSource1,
		"ext_source_2": f.ExtSource2,
		"ext_source_3": f.ExtSource3,
	} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return dErrors.Newf(dErrors.CodeValidation, "%s must be between 0 and 1", name)
		}
	}
	return nil
}

func positive(v float64) bool    { return v > 0 && !math.IsInf(v, 1) }
func nonNegative(v float64) bool { return v >= 0 && !math.IsInf(v, 1) }
