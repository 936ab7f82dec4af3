package validator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/gridstream/metric"
)

// validatorMetrics holds Prometheus metrics for validator operations
type validatorMetrics struct {
	outcomes *prometheus.CounterVec // By outcome
	duration prometheus.Histogram
}

// newValidatorMetrics creates and registers validator metrics
func newValidatorMetrics(registry *metric.MetricsRegistry) (*validatorMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &validatorMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gridstream",
			Subsystem: "validator",
			Name:      "measurements_total",
			Help:      "Total measurements processed, by outcome",
		}, []string{"outcome"}), // accepted, malformed, ownership_mismatch, persist_failure, broadcast_failure

		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gridstream",
			Subsystem: "validator",
			Name:      "processing_duration_seconds",
			Help:      "Accepted measurement processing duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
	}

	if err := registry.Register(componentName, "measurements_total", m.outcomes); err != nil {
		return nil, err
	}
	if err := registry.Register(componentName, "processing_duration_seconds", m.duration); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *validatorMetrics) recordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}

func (m *validatorMetrics) observeDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}
