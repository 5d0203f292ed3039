package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for explainability and fairness recording.
type Metrics struct {
	CacheLookups      *prometheus.CounterVec
	Unavailable       prometheus.Counter
	EmptyAttributions prometheus.Counter
	FairnessScore     *prometheus.GaugeVec
	Backfilled        prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credit_engine_fairness_cache_lookups_total",
			Help: "Fairness metric cache lookups by result (hit, miss)",
		}, []string{"result"}),

		Unavailable: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credit_engine_fairness_unavailable_total",
			Help: "Decisions recorded without fairness metrics",
		}),

		EmptyAttributions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credit_engine_empty_attributions_total",
			Help: "Decisions recorded with an empty feature attribution",
		}),

		FairnessScore: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "credit_engine_model_fairness_score",
			Help: "Latest model fairness score by protected attribute",
		}, []string{"protected_attribute"}),

		Backfilled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credit_engine_fairness_backfilled_total",
			Help: "Fairness records written by backfill",
		}),
	}
}

func (m *Metrics) IncrementCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementUnavailable() {
	if m == nil {
		return
	}
	m.Unavailable.Inc()
}

func (m *Metrics) IncrementEmptyAttribution() {
	if m == nil {
		return
	}
	m.EmptyAttributions.Inc()
}

func (m *Metrics) SetFairnessScore(attribute string, score float64) {
	if m == nil {
		return
	}
	m.FairnessScore.WithLabelValues(attribute).Set(score)
}

func (m *Metrics) AddBackfilled(n int) {
	if m == nil {
		return
	}
	m.Backfilled.Add(float64(n))
}
