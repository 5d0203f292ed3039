package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the application lifecycle.
type Metrics struct {
	Created          prometheus.Counter
	Transitions      *prometheus.CounterVec
	DuplicateAttempt prometheus.Counter
	EvaluationErrors *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Created: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credit_engine_applications_created_total",
			Help: "Applications created, including resubmitted versions",
		}),

		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credit_engine_application_transitions_total",
			Help: "Application status transitions by target status",
		}, []string{"status"}),

		DuplicateAttempt: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credit_engine_duplicate_evaluations_total",
			Help: "Evaluation attempts rejected because another evaluation owns the application",
		}),

		EvaluationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credit_engine_evaluation_errors_total",
			Help: "Failed evaluations by error code",
		}, []string{"code"}),
	}
}

func (m *Metrics) IncrementCreated() {
	if m == nil {
		return
	}
	m.Created.Inc()
}

func (m *Metrics) IncrementTransition(status string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementDuplicate() {
	if m == nil {
		return
	}
	m.DuplicateAttempt.Inc()
}

func (m *Metrics) IncrementEvaluationError(code string) {
	if m == nil {
		return
	}
	m.EvaluationErrors.WithLabelValues(code).Inc()
}
