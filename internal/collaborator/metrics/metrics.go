package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks outbound calls to the OCR, document-analysis and ML services.
type Metrics struct {
	CallLatency  *prometheus.HistogramVec
	CallOutcome  *prometheus.CounterVec
	BreakerState *prometheus.GaugeVec
}

func New() *Metrics {
	return &Metrics{
		CallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "credit_engine_collaborator_call_duration_seconds",
			Help:    "Duration of outbound collaborator calls by collaborator and operation",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"collaborator", "operation"}),

		CallOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credit_engine_collaborator_calls_total",
			Help: "Outbound collaborator calls by collaborator, operation and outcome category",
		}, []string{"collaborator", "operation", "outcome"}),

		BreakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "credit_engine_collaborator_breaker_open",
			Help: "1 when the collaborator circuit breaker is open",
		}, []string{"collaborator"}),
	}
}

func (m *Metrics) ObserveCall(collaborator, operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.CallLatency.WithLabelValues(collaborator, operation).Observe(d.Seconds())
	m.CallOutcome.WithLabelValues(collaborator, operation, outcome).Inc()
}

func (m *Metrics) SetBreakerOpen(collaborator string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.BreakerState.WithLabelValues(collaborator).Set(v)
}
