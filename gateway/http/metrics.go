package http

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/gridstream/metric"
)

// gatewayMetrics holds Prometheus metrics for the HTTP gateway
type gatewayMetrics struct {
	requests *prometheus.CounterVec // By endpoint and status
	duration prometheus.Histogram
}

// newGatewayMetrics creates and registers gateway metrics
func newGatewayMetrics(registry *metric.MetricsRegistry) (*gatewayMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &gatewayMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gridstream",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Total API requests by endpoint and status code",
		}, []string{"endpoint", "status"}),

		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gridstream",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Successful request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}

	if err := registry.Register(componentName, "requests_total", m.requests); err != nil {
		return nil, err
	}
	if err := registry.Register(componentName, "request_duration_seconds", m.duration); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *gatewayMetrics) recordRequest(endpoint string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

func (m *gatewayMetrics) observeDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}
