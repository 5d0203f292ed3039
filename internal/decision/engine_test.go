package decision

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"creditengine/internal/scoring"
	id "creditengine/pkg/domain"
	dErrors "creditengine/pkg/domain-errors"
)

type EngineSuite struct {
	suite.Suite
	engine *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.engine = NewEngine()
}

func fullComposite(total float64) scoring.CompositeScore {
	return scoring.CompositeScore{
		ApplicationID: id.NewApplicationID(),
		CategoryScores: map[scoring.Category]float64{
			scoring.CategoryIdentity: total,
			scoring.CategoryIncome:   total,
			scoring.CategoryTax:      total,
			scoring.CategoryBank:     total,
		},
		WeightedTotal: total,
	}
}

func (s *EngineSuite) TestScenario_StrongApplicantApprovedByModel() {
	composite := scoring.AggregateCategories(scoring.DefaultWeights(), 95, []float64{80, 78, 82}, 78, 75)

	d, err := s.engine.Decide(composite, ModelSignal(0.15, 0.91))
	s.Require().NoError(err)

	s.Equal(751, d.CreditScore)
	s.Equal(OutcomeApproved, d.Outcome)
	s.Equal(RiskLow, d.RiskLevel)
	s.Equal(SourceModel, d.Source)
	s.InDelta(0.91, d.Confidence, 1e-12)
	s.Require().NotNil(d.MLProbability)
	s.InDelta(0.15, *d.MLProbability, 1e-12)
}

func (s *EngineSuite) TestScenario_WeakCompositeRejectedWithoutModel() {
	d, err := s.engine.Decide(fullComposite(48.75), NoModelSignal("ml unavailable"))
	s.Require().NoError(err)

	s.Equal(568, d.CreditScore)
	s.Equal(OutcomeRejected, d.Outcome)
	s.Equal(RiskHigh, d.RiskLevel)
	s.Equal(SourceCompositeFallback, d.Source)
	s.Equal(0.6, d.Confidence)
	s.Nil(d.MLProbability)
	s.True(d.ManualReviewAdvised(s.engine.Policy()))
}

func (s *EngineSuite) TestOutOfRangeProbabilityFallsBackToComposite() {
	composite := scoring.AggregateCategories(scoring.DefaultWeights(), 95, []float64{80, 78, 82}, 78, 75)

	for _, p := range []float64{-0.5, 1.7, math.Inf(-1), math.Inf(1), math.NaN()} {
		signal := ModelSignal(p, 0.9)
		s.False(signal.Available(), "probability %v", p)
		s.NotEmpty(signal.UnavailableReason())

		d, err := s.engine.Decide(composite, signal)
		s.Require().NoError(err)
		s.Equal(SourceCompositeFallback, d.Source, "probability %v", p)
		s.Equal(OutcomeApproved, d.Outcome, "82 clears the composite approval threshold")
		s.Equal(0.6, d.Confidence)
		s.Nil(d.MLProbability)
	}

	for _, p := range []float64{0, 1} {
		s.True(ModelSignal(p, 0.9).Available(), "probability %v is a valid edge", p)
	}
}

func (s *EngineSuite) TestScenario_NeutralDocumentsAggregateToConditional() {
	// identity 95 with every other document at the neutral 50 aggregates to 61.25
	composite := scoring.AggregateCategories(scoring.DefaultWeights(), 95, []float64{50, 50, 50}, 50, 50)

	d, err := s.engine.Decide(composite, NoModelSignal("ml unavailable"))
	s.Require().NoError(err)
	s.Equal(637, d.CreditScore)
	s.Equal(OutcomeConditional, d.Outcome)
	s.Equal(RiskMedium, d.RiskLevel)
}

func (s *EngineSuite) TestScenario_MissingTaxCategory() {
	composite := scoring.Aggregate(scoring.DefaultWeights(), map[scoring.Category][]float64{
		scoring.CategoryIdentity: {95},
		scoring.CategoryIncome:   {80, 78, 82},
		scoring.CategoryTax:      {},
		scoring.CategoryBank:     {75},
	})

	d, err := s.engine.Decide(composite, ModelSignal(0.1, 0.9))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInsufficientDocumentCoverage))
	s.Contains(err.Error(), "TAX")
	s.Equal(Decision{}, d)
}

func (s *EngineSuite) TestModelBands() {
	cases := []struct {
		p       float64
		outcome Outcome
		risk    RiskLevel
	}{
		{0.0, OutcomeApproved, RiskLow},
		{0.399, OutcomeApproved, RiskLow},
		{0.4, OutcomeConditional, RiskMedium},
		{0.599, OutcomeConditional, RiskMedium},
		{0.6, OutcomeRejected, RiskHigh},
		{1.0, OutcomeRejected, RiskHigh},
	}
	for _, tc := range cases {
		// the model wins even when the composite disagrees
		d, err := s.engine.Decide(fullComposite(10), ModelSignal(tc.p, 0.8))
		s.Require().NoError(err)
		s.Equal(tc.outcome, d.Outcome, "p=%v", tc.p)
		s.Equal(tc.risk, d.RiskLevel, "p=%v", tc.p)
	}
}

func (s *EngineSuite) TestFallbackBands() {
	cases := map[float64]Outcome{
		100:    OutcomeApproved,
		70:     OutcomeApproved,
		69.999: OutcomeConditional,
		60:     OutcomeConditional,
		59.999: OutcomeRejected,
		0:      OutcomeRejected,
	}
	for total, want := range cases {
		d, err := s.engine.Decide(fullComposite(total), NoModelSignal("timeout"))
		s.Require().NoError(err)
		s.Equal(want, d.Outcome, "total=%v", total)
		s.Equal(0.6, d.Confidence)
	}
}

func (s *EngineSuite) TestModelConfidenceIsClamped() {
	d, err := s.engine.Decide(fullComposite(80), ModelSignal(0.2, 1.7))
	s.Require().NoError(err)
	s.Equal(1.0, d.Confidence)
}

func (s *EngineSuite) TestCustomMandatoryCategories() {
	engine := NewEngine(WithMandatoryCategories([]scoring.Category{scoring.CategoryIdentity, scoring.CategoryIncome}))
	s.NoError(engine.CheckCoverage([]scoring.Category{scoring.CategoryIdentity, scoring.CategoryIncome}))
	s.Error(engine.CheckCoverage([]scoring.Category{scoring.CategoryIdentity}))
}

func TestDecide_Idempotent(t *testing.T) {
	engine := NewEngine()
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 500; i++ {
		composite := fullComposite(r.Float64() * 100)
		var signal Signal
		if r.Intn(2) == 0 {
			signal = ModelSignal(r.Float64(), r.Float64())
		} else {
			signal = NoModelSignal("unavailable")
		}

		first, err := engine.Decide(composite, signal)
		require.NoError(t, err)
		second, err := engine.Decide(composite, signal)
		require.NoError(t, err)
		require.Equal(t, first, second)
	}
}

func TestDecide_FallbackIsDeterministic(t *testing.T) {
	engine := NewEngine()
	r := rand.New(rand.NewSource(11))
	for i := 0; i < 500; i++ {
		total := r.Float64() * 100
		d, err := engine.Decide(fullComposite(total), NoModelSignal("ml down"))
		require.NoError(t, err)

		want, _ := EvaluateComposite(DefaultPolicy(), total)
		require.Equal(t, want, d.Outcome)
		require.Equal(t, SourceCompositeFallback, d.Source)
	}
}

func TestCreditScore_Bounds(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	for i := 0; i < 1000; i++ {
		total := r.Float64()*300 - 100
		score := CreditScore(total)
		require.GreaterOrEqual(t, score, 300)
		require.LessOrEqual(t, score, 850)
	}
	assert.Equal(t, 300, CreditScore(0))
	assert.Equal(t, 850, CreditScore(100))
	assert.Equal(t, 751, CreditScore(82))
}

func TestCreditScore_Monotonic(t *testing.T) {
	prev := CreditScore(0)
	for total := 0.0; total <= 100; total += 0.25 {
		cur := CreditScore(total)
		require.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}
