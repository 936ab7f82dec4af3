package router

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/gridstream/metric"
)

// routerMetrics holds Prometheus metrics for partition router operations
type routerMetrics struct {
	routed  *prometheus.CounterVec // By replica
	dropped *prometheus.CounterVec // By reason (malformed, missing_device_id)
	errors  *prometheus.CounterVec // By error_type (publish)
}

// newRouterMetrics creates and registers router metrics with the provided registry
func newRouterMetrics(registry *metric.MetricsRegistry) (*routerMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &routerMetrics{
		routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gridstream",
			Subsystem: "router",
			Name:      "routed_total",
			Help:      "Total measurements routed, by target replica",
		}, []string{"replica"}),

		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gridstream",
			Subsystem: "router",
			Name:      "dropped_total",
			Help:      "Total measurements dropped before routing",
		}, []string{"reason"}),

		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gridstream",
			Subsystem: "router",
			Name:      "errors_total",
			Help:      "Total routing errors",
		}, []string{"error_type"}),
	}

	if err := registry.Register(componentName, "routed_total", m.routed); err != nil {
		return nil, err
	}
	if err := registry.Register(componentName, "dropped_total", m.dropped); err != nil {
		return nil, err
	}
	if err := registry.Register(componentName, "errors_total", m.errors); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *routerMetrics) recordRouted(replica int) {
	if m == nil {
		return
	}
	m.routed.WithLabelValues(strconv.Itoa(replica)).Inc()
}

func (m *routerMetrics) recordDropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *routerMetrics) recordError(errorType string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(errorType).Inc()
}
