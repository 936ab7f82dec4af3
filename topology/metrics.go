package topology

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/gridstream/metric"
)

// topologyMetrics holds Prometheus metrics for the materializer
type topologyMetrics struct {
	applied    *prometheus.CounterVec // By event kind
	discarded  *prometheus.CounterVec // By event kind
	devices    prometheus.Gauge
	ownerships prometheus.Gauge
}

// newTopologyMetrics creates and registers materializer metrics
func newTopologyMetrics(registry *metric.MetricsRegistry) (*topologyMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &topologyMetrics{
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gridstream",
			Subsystem: "topology",
			Name:      "events_applied_total",
			Help:      "Total device events applied to the ownership table",
		}, []string{"kind"}),

		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gridstream",
			Subsystem: "topology",
			Name:      "events_discarded_total",
			Help:      "Total malformed device events discarded",
		}, []string{"kind"}),

		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gridstream",
			Subsystem: "topology",
			Name:      "devices",
			Help:      "Devices currently known to this replica",
		}),

		ownerships: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gridstream",
			Subsystem: "topology",
			Name:      "ownerships",
			Help:      "Device assignments currently known to this replica",
		}),
	}

	if err := registry.Register(componentName, "events_applied_total", m.applied); err != nil {
		return nil, err
	}
	if err := registry.Register(componentName, "events_discarded_total", m.discarded); err != nil {
		return nil, err
	}
	if err := registry.Register(componentName, "devices", m.devices); err != nil {
		return nil, err
	}
	if err := registry.Register(componentName, "ownerships", m.ownerships); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *topologyMetrics) recordApplied(kind string) {
	if m == nil {
		return
	}
	m.applied.WithLabelValues(kind).Inc()
}

func (m *topologyMetrics) recordDiscarded(kind string) {
	if m == nil {
		return
	}
	m.discarded.WithLabelValues(kind).Inc()
}

func (m *topologyMetrics) setTableSizes(devices, ownerships int) {
	if m == nil {
		return
	}
	m.devices.Set(float64(devices))
	m.ownerships.Set(float64(ownerships))
}
