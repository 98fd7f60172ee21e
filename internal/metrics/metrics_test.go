package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveAdmission(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveAdmission("admitted", 10*time.Millisecond)
	m.ObserveAdmission("admitted", 20*time.Millisecond)
	m.ObserveAdmission("capacity_exceeded", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AdmissionAttempts.WithLabelValues("admitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdmissionAttempts.WithLabelValues("capacity_exceeded")))
}

func TestObserveCompensation(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveCompensation("artifact", nil)
	m.ObserveCompensation("artifact", errors.New("disk gone"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Compensations.WithLabelValues("artifact", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Compensations.WithLabelValues("artifact", "failed")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveAdmission("admitted", time.Second)
	m.ObserveCompensation("artifact", nil)
	m.AddArtifactBytes(10)
}
