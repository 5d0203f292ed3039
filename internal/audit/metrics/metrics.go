package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the compliance audit trail.
type Metrics struct {
	EventsEmitted   *prometheus.CounterVec
	PersistFailures prometheus.Counter
	Relayed         prometheus.Counter
	RelayFailures   prometheus.Counter
	RelayBacklog    prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credit_engine_audit_events_emitted_total",
			Help: "Compliance events written to the outbox by type",
		}, []string{"type"}),

		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credit_engine_audit_persist_failures_total",
			Help: "Compliance events that could not be written to the outbox",
		}),

		Relayed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credit_engine_audit_relayed_total",
			Help: "Outbox entries published to Kafka",
		}),

		RelayFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credit_engine_audit_relay_failures_total",
			Help: "Relay batches that failed to publish",
		}),

		RelayBacklog: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "credit_engine_audit_relay_batch_size",
			Help: "Size of the last batch of pending outbox entries",
		}),
	}
}

func (m *Metrics) IncrementEmitted(eventType string) {
	if m == nil {
		return
	}
	m.EventsEmitted.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncrementPersistFailure() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

func (m *Metrics) ObserveRelay(batch, published int, failed bool) {
	if m == nil {
		return
	}
	m.RelayBacklog.Set(float64(batch))
	m.Relayed.Add(float64(published))
	if failed {
		m.RelayFailures.Inc()
	}
}
