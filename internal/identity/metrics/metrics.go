package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for identity verification.
type Metrics struct {
	Verifications *prometheus.CounterVec
	OCRConfidence prometheus.Histogram
	OCRLatency    prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credit_engine_identity_verifications_total",
			Help: "Identity verifications by result (matched, low_confidence, manual_review, mismatch)",
		}, []string{"result"}),

		OCRConfidence: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "credit_engine_identity_ocr_confidence",
			Help:    "Confidence reported by the OCR collaborator for extracted identifiers",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),

		OCRLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "credit_engine_identity_ocr_duration_seconds",
			Help:    "Duration of OCR extraction calls",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

func (m *Metrics) IncrementResult(result string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveExtraction(confidence float64, d time.Duration) {
	if m == nil {
		return
	}
	m.OCRConfidence.Observe(confidence)
	m.OCRLatency.Observe(d.Seconds())
}
