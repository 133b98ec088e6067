package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LendingMetrics counts borrow and return outcomes.
type LendingMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewLendingMetrics registers the lending collectors. A nil registerer yields a no-op recorder.
func NewLendingMetrics(reg prometheus.Registerer) *LendingMetrics {
	if reg == nil {
		return &LendingMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "lending_operations_total",
		Help:      "Borrow and return attempts by outcome code.",
	}, []string{"operation", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "lending_operation_duration_seconds",
		Help:      "Duration of lending transactions in seconds.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"operation"})
	reg.MustRegister(operations, duration)
	return &LendingMetrics{operations: operations, duration: duration}
}

// Observe records one finished operation. outcome is "ok" or the error code.
func (m *LendingMetrics) Observe(operation, outcome string, elapsed time.Duration) {
	if m == nil || m.operations == nil {
		return
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.operations.WithLabelValues(normalizeLabel(operation), outcome).Inc()
	m.duration.WithLabelValues(normalizeLabel(operation)).Observe(elapsed.Seconds())
}
