package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for document scoring.
type Metrics struct {
	ScoreLatency   *prometheus.HistogramVec
	FallbackScores *prometheus.CounterVec
	RawScores      *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		ScoreLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "credit_engine_document_score_duration_seconds",
			Help:    "Duration of scoring a single document by category",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"category"}),

		FallbackScores: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credit_engine_document_score_fallbacks_total",
			Help: "Documents that received the neutral fallback score, by category and failure category",
		}, []string{"category", "reason"}),

		RawScores: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "credit_engine_document_raw_score",
			Help:    "Distribution of document scores by category",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}, []string{"category"}),
	}
}

func (m *Metrics) ObserveScore(category string, score float64, d time.Duration) {
	if m == nil {
		return
	}
	m.ScoreLatency.WithLabelValues(category).Observe(d.Seconds())
	m.RawScores.WithLabelValues(category).Observe(score)
}

func (m *Metrics) IncrementFallback(category, reason string) {
	if m == nil {
		return
	}
	m.FallbackScores.WithLabelValues(category, reason).Inc()
}
