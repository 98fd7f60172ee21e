// Package metrics holds the Prometheus instruments for admission control.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	AdmissionAttempts    *prometheus.CounterVec
	AdmissionDuration    prometheus.Histogram
	Compensations        *prometheus.CounterVec
	ArtifactBytesWritten prometheus.Counter
}

// New creates the metrics and registers them on reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AdmissionAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "admission_attempts_total",
			Help: "Registration attempts by outcome",
		}, []string{"outcome"}),
		AdmissionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "admission_duration_seconds",
			Help:    "Time spent deciding a registration attempt",
			Buckets: prometheus.DefBuckets,
		}),
		Compensations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "admission_compensations_total",
			Help: "Compensating actions run after a failed write, by step and result",
		}, []string{"step", "result"}),
		ArtifactBytesWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "artifact_bytes_written_total",
			Help: "Bytes of identity documents written to the artifact store",
		}),
	}
}

// ObserveAdmission records one finished attempt.
func (m *Metrics) ObserveAdmission(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.AdmissionAttempts.WithLabelValues(outcome).Inc()
	m.AdmissionDuration.Observe(elapsed.Seconds())
}

// ObserveCompensation records one compensating action.
func (m *Metrics) ObserveCompensation(step string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.Compensations.WithLabelValues(step, result).Inc()
}

// AddArtifactBytes counts bytes written for identity documents.
func (m *Metrics) AddArtifactBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.ArtifactBytesWritten.Add(float64(n))
}
