package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveAttempt(OutcomeConflict)
	m.ObserveAttempt(OutcomeSaved)
	m.ObserveVisit(ResultOK, 0.01)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Attempts.WithLabelValues(OutcomeConflict)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Visits.WithLabelValues(ResultOK)))

	n, err := testutil.GatherAndCount(reg, "visit_counter_visit_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAttempt(OutcomeError)
		m.ObserveVisit(ResultError, 1)
	})
}
