package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NotNil(t, registry)
	require.NotNil(t, registry.PrometheusRegistry())
	require.NotNil(t, registry.CoreMetrics())
}

func TestRegisterAndUnregister(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_routed_total",
		Help: "test counter",
	})

	require.NoError(t, registry.Register("router", "routed_total", counter))

	// Duplicate registration under the same key fails
	err := registry.Register("router", "routed_total", counter)
	require.Error(t, err)

	assert.True(t, registry.Unregister("router", "routed_total"))
	assert.False(t, registry.Unregister("router", "routed_total"))
}

func TestRegisterDistinctComponentsSameMetricName(t *testing.T) {
	registry := NewMetricsRegistry()

	a := prometheus.NewCounter(prometheus.CounterOpts{Name: "a_processed_total", Help: "a"})
	b := prometheus.NewCounter(prometheus.CounterOpts{Name: "b_processed_total", Help: "b"})

	require.NoError(t, registry.Register("validator-0", "processed_total", a))
	require.NoError(t, registry.Register("validator-1", "processed_total", b))
}

func TestCoreMetricsRecording(t *testing.T) {
	registry := NewMetricsRegistry()
	core := registry.CoreMetrics()

	// Recording must not panic on fresh label sets
	core.RecordComponentStatus("router", 2)
	core.RecordMessageReceived("router", "measurement")
	core.RecordMessageProcessed("router", "measurement", "accept")
	core.RecordMessagePublished("router", "telemetry.replica.0")
	core.RecordError("router", "decode")
	core.RecordHealthStatus("router", true)
	core.RecordNATSStatus(true)
	core.RecordNATSReconnect()

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
