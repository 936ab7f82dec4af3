package broadcast

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/gridstream/metric"
)

// broadcastMetrics holds Prometheus metrics for fan-out operations
type broadcastMetrics struct {
	connected prometheus.Gauge
	received  prometheus.Counter
	delivered prometheus.Counter
	errors    *prometheus.CounterVec // By error_type
}

// newBroadcastMetrics creates and registers broadcaster metrics
func newBroadcastMetrics(registry *metric.MetricsRegistry) (*broadcastMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &broadcastMetrics{
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gridstream",
			Subsystem: "broadcast",
			Name:      "connected_clients",
			Help:      "Number of currently connected WebSocket clients",
		}),

		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridstream",
			Subsystem: "broadcast",
			Name:      "envelopes_received_total",
			Help:      "Total broadcast envelopes received from the event subject",
		}),

		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridstream",
			Subsystem: "broadcast",
			Name:      "messages_delivered_total",
			Help:      "Total messages enqueued to client connections",
		}),

		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gridstream",
			Subsystem: "broadcast",
			Name:      "errors_total",
			Help:      "Total broadcast errors by type",
		}, []string{"error_type"}), // decode, upgrade, send_buffer_full
	}

	if err := registry.Register(componentName, "connected_clients", m.connected); err != nil {
		return nil, err
	}
	if err := registry.Register(componentName, "envelopes_received_total", m.received); err != nil {
		return nil, err
	}
	if err := registry.Register(componentName, "messages_delivered_total", m.delivered); err != nil {
		return nil, err
	}
	if err := registry.Register(componentName, "errors_total", m.errors); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *broadcastMetrics) setConnected(n int) {
	if m == nil {
		return
	}
	m.connected.Set(float64(n))
}

func (m *broadcastMetrics) recordReceived() {
	if m == nil {
		return
	}
	m.received.Inc()
}

func (m *broadcastMetrics) recordDelivered() {
	if m == nil {
		return
	}
	m.delivered.Inc()
}

func (m *broadcastMetrics) recordError(errorType string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(errorType).Inc()
}
