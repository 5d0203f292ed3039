package scoring

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	dErrors "creditengine/pkg/domain-errors"
)

const weightTolerance = 1e-6

// Weights maps each category to its share of the composite score.
type Weights map[Category]float64

// DefaultWeights weighs the four categories equally.
func DefaultWeights() Weights {
	return Weights{
		CategoryIdentity: 0.25,
		CategoryIncome:   0.25,
		CategoryTax:      0.25,
		CategoryBank:     0.25,
	}
}

// Validate requires known categories, non-negative weights and a sum of 1.
func (w Weights) Validate() error {
	if len(w) == 0 {
		return dErrors.New(dErrors.CodeValidation, "scoring weights are empty")
	}
	sum := 0.0
	for cat, weight := range w {
		if !cat.IsValid() {
			return dErrors.Newf(dErrors.CodeValidation, "unknown weight category %q", cat)
		}
		if weight < 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
			return dErrors.Newf(dErrors.CodeValidation, "weight for %s must be a non-negative number", cat)
		}
		sum += weight
	}
	if math.Abs(sum-1) > weightTolerance {
		return dErrors.Newf(dErrors.CodeValidation, "scoring weights must sum to 1, got %.6f", sum)
	}
	return nil
}

// ParseWeights reads "IDENTITY=0.25,INCOME=0.25,TAX=0.25,BANK=0.25".
// An empty string yields the defaults.
func ParseWeights(s string) (Weights, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultWeights(), nil
	}
	w := Weights{}
	for _, pair := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, dErrors.Newf(dErrors.CodeValidation, "malformed weight %q", pair)
		}
		cat, err := ParseCategory(key)
		if err != nil {
			return nil, err
		}
		if _, dup := w[cat]; dup {
			return nil, dErrors.Newf(dErrors.CodeValidation, "duplicate weight for %s", cat)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("weight for %s is not a number", cat))
		}
		w[cat] = f
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// Aggregate folds per-category instance scores into a composite score.
// Each category scores the mean of its instances; a category with no instances
// contributes 0 and is left out of CategoryScores. Pure: no I/O, no clock.
func Aggregate(weights Weights, scores map[Category][]float64) CompositeScore {
	categoryScores := make(map[Category]float64, len(scores))
	total := 0.0
	for _, cat := range AllCategories {
		instances := scores[cat]
		if len(instances) == 0 {
			continue
		}
		avg := clamp(mean(instances), 0, 100)
		categoryScores[cat] = avg
		total += avg * weights[cat]
	}
	return CompositeScore{
		CategoryScores: categoryScores,
		WeightedTotal:  clamp(total, 0, 100),
	}
}

// AggregateCategories is Aggregate for the fixed identity/income/tax/bank shape.
func AggregateCategories(weights Weights, identity float64, income []float64, tax, bank float64) CompositeScore {
	return Aggregate(weights, map[Category][]float64{
		CategoryIdentity: {identity},
		CategoryIncome:   income,
		CategoryTax:      {tax},
		CategoryBank:     {bank},
	})
}

// AggregateDocuments groups scored documents by category and aggregates them.
func AggregateDocuments(weights Weights, docs []DocumentScore) CompositeScore {
	byCategory := make(map[Category][]float64, len(AllCategories))
	for _, d := range docs {
		byCategory[d.Category] = append(byCategory[d.Category], d.RawScore)
	}
	return Aggregate(weights, byCategory)
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
