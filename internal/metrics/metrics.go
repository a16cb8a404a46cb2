package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "visit_counter"

// Attempt outcomes.
const (
	OutcomeSaved    = "saved"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// Visit results.
const (
	ResultOK        = "ok"
	ResultMissing   = "missing"
	ResultExhausted = "exhausted"
	ResultError     = "error"
)

type Metrics struct {
	Visits   *prometheus.CounterVec
	Attempts *prometheus.CounterVec
	Duration prometheus.Histogram
}

// New creates the collectors and registers them with reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Visits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visits_total",
			Help:      "Visits handled, by result.",
		}, []string{"result"}),
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Read-modify-write attempts, by outcome.",
		}, []string{"outcome"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "visit_duration_seconds",
			Help:      "Time spent in a visit including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Visits, m.Attempts, m.Duration)
	}
	return m
}

func (m *Metrics) ObserveAttempt(outcome string) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveVisit(result string, seconds float64) {
	if m == nil {
		return
	}
	m.Visits.WithLabelValues(result).Inc()
	m.Duration.Observe(seconds)
}
