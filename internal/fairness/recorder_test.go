package fairness

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"creditengine/internal/collaborator"
	"creditengine/internal/collaborator/ml"
	"creditengine/internal/decision"
	id "creditengine/pkg/domain"
	dErrors "creditengine/pkg/domain-errors"
	"creditengine/pkg/requestcontext"
)

type providerFunc func(ctx context.Context, attr string) (ml.FairnessMetrics, error)

func (f providerFunc) Fairness(ctx context.Context, attr string) (ml.FairnessMetrics, error) {
	return f(ctx, attr)
}

var sampleMetrics = ml.FairnessMetrics{
	DemographicParity:     0.04,
	EqualOpportunity:      0.03,
	DisparateImpact:       0.92,
	AverageOddsDifference: 0.02,
	FairnessScore:         87.5,
}

type pendingStore struct {
	pending []decision.Decision
	saved   []Record
	failAt  int
}

func (p *pendingStore) ListFairnessPending(_ context.Context, limit int) ([]decision.Decision, error) {
	if len(p.pending) > limit {
		return p.pending[:limit], nil
	}
	return p.pending, nil
}

func (p *pendingStore) SaveFairnessRecord(_ context.Context, rec Record) error {
	if p.failAt > 0 && len(p.saved)+1 == p.failAt {
		return errors.New("write failed")
	}
	p.saved = append(p.saved, rec)
	return nil
}

type RecorderSuite struct {
	suite.Suite
	ctx   context.Context
	now   time.Time
	calls atomic.Int32
}

func TestRecorderSuite(t *testing.T) {
	suite.Run(t, new(RecorderSuite))
}

func (s *RecorderSuite) SetupTest() {
	s.now = time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.calls.Store(0)
}

func (s *RecorderSuite) newRecorder(p Provider, opts ...Option) *Recorder {
	opts = append(opts, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return NewRecorder(p, opts...)
}

func (s *RecorderSuite) countingProvider(m ml.FairnessMetrics, err error) Provider {
	return providerFunc(func(_ context.Context, attr string) (ml.FairnessMetrics, error) {
		s.calls.Add(1)
		return m, err
	})
}

func (s *RecorderSuite) TestFetchCachesMetrics() {
	r := s.newRecorder(s.countingProvider(sampleMetrics, nil))

	first := r.Fetch(s.ctx)
	second := r.Fetch(s.ctx)

	s.True(first.Available())
	s.Equal(first, second)
	s.Equal(int32(1), s.calls.Load())
	s.Equal(87.5, first.Metrics().FairnessScore)
}

func (s *RecorderSuite) TestFetchUsesConfiguredAttribute() {
	var seen string
	r := s.newRecorder(providerFunc(func(_ context.Context, attr string) (ml.FairnessMetrics, error) {
		seen = attr
		return sampleMetrics, nil
	}), WithProtectedAttribute("age_band"))

	r.Fetch(s.ctx)
	s.Equal("age_band", seen)
	s.Equal("age_band", r.ProtectedAttribute())
}

func (s *RecorderSuite) TestFetchForCachesPerAttribute() {
	var seen []string
	r := s.newRecorder(providerFunc(func(_ context.Context, attr string) (ml.FairnessMetrics, error) {
		seen = append(seen, attr)
		return sampleMetrics, nil
	}))

	s.True(r.FetchFor(s.ctx, "age_band").Available())
	s.True(r.FetchFor(s.ctx, "age_band").Available())
	s.True(r.Fetch(s.ctx).Available())

	s.Equal([]string{"age_band", "gender"}, seen)
}

func (s *RecorderSuite) TestFetchUnavailableIsNotCached() {
	r := s.newRecorder(s.countingProvider(ml.FairnessMetrics{},
		collaborator.NewError(collaborator.ErrorProviderOutage, "ml", "503", nil)))

	input := r.Fetch(s.ctx)
	s.False(input.Available())
	s.Contains(input.Reason(), "provider_outage")

	r.Fetch(s.ctx)
	s.Equal(int32(2), s.calls.Load())
}

func (s *RecorderSuite) TestFetchRejectsOutOfRangeScore() {
	bad := sampleMetrics
	bad.FairnessScore = 140
	r := s.newRecorder(s.countingProvider(bad, nil))

	s.False(r.Fetch(s.ctx).Available())
}

func (s *RecorderSuite) TestRecordWithMetrics() {
	r := s.newRecorder(s.countingProvider(sampleMetrics, nil))
	d := decision.Decision{ID: id.NewDecisionID(), ApplicationID: id.NewApplicationID()}
	attribution := map[string]float64{"EXT_SOURCE_2": -0.31, "AMT_CREDIT": 0.12}

	out, err := r.Record(s.ctx, d, attribution, r.Fetch(s.ctx))
	s.Require().NoError(err)
	s.Equal(attribution, out.Decision.Attribution)
	s.False(out.Decision.FairnessUnavailable)
	s.Require().NotNil(out.Record)
	s.Equal(d.ID, out.Record.DecisionID)
	s.Equal("gender", out.Record.ProtectedAttribute)
	s.Equal(s.now, out.Record.RecordedAt)
	s.Equal(0.92, out.Record.DisparateImpact)

	attribution["EXT_SOURCE_2"] = 0
	s.Equal(-0.31, out.Decision.Attribution["EXT_SOURCE_2"])
}

func (s *RecorderSuite) TestRecordUnavailableFlagsDecision() {
	r := s.newRecorder(s.countingProvider(sampleMetrics, nil))

	out, err := r.Record(s.ctx, decision.Decision{ID: id.NewDecisionID()}, map[string]float64{"x": 1}, Unavailable("timeout"))
	s.Require().NoError(err)
	s.True(out.Decision.FairnessUnavailable)
	s.Nil(out.Record)
}

func (s *RecorderSuite) TestRecordEmptyAttributionIsNotAnError() {
	r := s.newRecorder(s.countingProvider(sampleMetrics, nil))

	out, err := r.Record(s.ctx, decision.Decision{ID: id.NewDecisionID()}, nil, Measured(Metrics(sampleMetrics)))
	s.Require().NoError(err)
	s.NotNil(out.Decision.Attribution)
	s.Empty(out.Decision.Attribution)
}

func (s *RecorderSuite) TestRecordRejectsInvalidMetrics() {
	r := s.newRecorder(s.countingProvider(sampleMetrics, nil))
	bad := Metrics(sampleMetrics)
	bad.DisparateImpact = math.Inf(1)

	_, err := r.Record(s.ctx, decision.Decision{ID: id.NewDecisionID()}, nil, Measured(bad))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *RecorderSuite) TestBackfill() {
	store := &pendingStore{pending: []decision.Decision{
		{ID: id.NewDecisionID(), FairnessUnavailable: true},
		{ID: id.NewDecisionID(), FairnessUnavailable: true},
		{ID: id.NewDecisionID(), FairnessUnavailable: true},
	}}
	r := s.newRecorder(s.countingProvider(sampleMetrics, nil))

	n, err := r.Backfill(s.ctx, store, 2)
	s.Require().NoError(err)
	s.Equal(2, n)
	s.Require().Len(store.saved, 2)
	s.Equal(store.pending[0].ID, store.saved[0].DecisionID)
	s.Equal(87.5, store.saved[1].FairnessScore)
}

func (s *RecorderSuite) TestBackfillStopsOnWriteFailure() {
	store := &pendingStore{
		pending: []decision.Decision{{ID: id.NewDecisionID()}, {ID: id.NewDecisionID()}},
		failAt:  2,
	}
	r := s.newRecorder(s.countingProvider(sampleMetrics, nil))

	n, err := r.Backfill(s.ctx, store, 10)
	s.Require().Error(err)
	s.Equal(1, n)
}

func (s *RecorderSuite) TestBackfillWithMetricsUnavailable() {
	store := &pendingStore{pending: []decision.Decision{{ID: id.NewDecisionID()}}}
	r := s.newRecorder(s.countingProvider(ml.FairnessMetrics{},
		collaborator.NewError(collaborator.ErrorTimeout, "ml", "slow", context.DeadlineExceeded)))

	n, err := r.Backfill(s.ctx, store, 10)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeCollaboratorUnavailable))
	s.Zero(n)
	s.Empty(store.saved)
}

func (s *RecorderSuite) TestBackfillNothingPendingSkipsProvider() {
	r := s.newRecorder(s.countingProvider(sampleMetrics, nil))

	n, err := r.Backfill(s.ctx, &pendingStore{}, 10)
	s.Require().NoError(err)
	s.Zero(n)
	s.Zero(s.calls.Load())
}

func TestMemoryCache_Expiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "gender", Metrics{FairnessScore: 90}, 5*time.Minute))

	m, ok, err := c.Get(ctx, "gender")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 90.0, m.FairnessScore)

	now = now.Add(5 * time.Minute)
	_, ok, err = c.Get(ctx, "gender")
	require.NoError(t, err)
	assert.False(t, ok)
}
