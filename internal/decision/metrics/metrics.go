package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the decision pipeline.
type Metrics struct {
	// Pipeline stage latencies: identity, scoring, model, decide, attach
	StageLatency *prometheus.HistogramVec

	// Decision outcomes by outcome and source
	DecisionOutcome *prometheus.CounterVec

	// Overall evaluation latency
	EvaluateLatency prometheus.Histogram

	CreditScores prometheus.Histogram
}

// New creates a new Metrics instance with all decision metrics registered.
func New() *Metrics {
	return &Metrics{
		StageLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "credit_engine_evaluation_stage_duration_seconds",
			Help:    "Duration of evaluation pipeline stages",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),

		DecisionOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credit_engine_decision_outcomes_total",
			Help: "Total decisions by outcome and signal source",
		}, []string{"outcome", "source"}),

		EvaluateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "credit_engine_evaluate_duration_seconds",
			Help:    "Duration of full application evaluation",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),

		CreditScores: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "credit_engine_credit_score",
			Help:    "Distribution of issued credit scores",
			Buckets: prometheus.LinearBuckets(300, 50, 12),
		}),
	}
}

// ObserveStageLatency records the duration of one pipeline stage.
func (m *Metrics) ObserveStageLatency(stage string, d time.Duration) {
	if m != nil {
		m.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// IncrementOutcome records a decision outcome.
func (m *Metrics) IncrementOutcome(outcome, source string, creditScore int) {
	if m != nil {
		m.DecisionOutcome.WithLabelValues(outcome, source).Inc()
		m.CreditScores.Observe(float64(creditScore))
	}
}

// ObserveEvaluateLatency records the total evaluation duration.
func (m *Metrics) ObserveEvaluateLatency(d time.Duration) {
	if m != nil {
		m.EvaluateLatency.Observe(d.Seconds())
	}
}
