// Package router implements the partition router: it consumes raw
// measurements from the ingress stream and republishes each one,
// unmodified, to the replica subject its device hashes to.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/gridstream/component"
	"github.com/c360/gridstream/errors"
	"github.com/c360/gridstream/message"
	"github.com/c360/gridstream/natsclient"
	"github.com/c360/gridstream/partition"
)

const componentName = "partition-router"

// Config holds configuration for the partition router
type Config struct {
	Replicas int    `json:"replicas"`
	Durable  string `json:"durable,omitempty"`
}

// DefaultConfig returns the default router configuration
func DefaultConfig() Config {
	return Config{
		Replicas: 3,
		Durable:  "partition-router",
	}
}

// Router consumes the ingress stream and fans measurements out across
// the replica subjects by device hash
type Router struct {
	name       string
	replicas   int
	durable    string
	natsClient *natsclient.Client
	logger     *slog.Logger

	// Lifecycle management
	running     bool
	startTime   time.Time
	mu          sync.RWMutex
	lifecycleMu sync.Mutex

	// Atomic counters for DataFlow
	messagesProcessed int64
	messagesDropped   int64
	errorCount        int64
	lastActivity      atomic.Int64 // unix nanos

	metrics *routerMetrics
}

// NewRouter creates a partition router from configuration
func NewRouter(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &config); err != nil {
			return nil, errors.WrapInvalid(err, "Router", "NewRouter", "config unmarshal")
		}
	}

	if config.Replicas <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Router", "NewRouter",
			fmt.Sprintf("replicas must be positive, got %d", config.Replicas))
	}
	if config.Durable == "" {
		config.Durable = "partition-router"
	}

	metrics, err := newRouterMetrics(deps.MetricsRegistry)
	if err != nil {
		deps.GetLogger().Error("Failed to initialize router metrics", "error", err)
		metrics = nil // Continue without metrics
	}

	return &Router{
		name:       componentName,
		replicas:   config.Replicas,
		durable:    config.Durable,
		natsClient: deps.NATSClient,
		logger:     deps.GetLoggerWithComponent(componentName),
		metrics:    metrics,
	}, nil
}

// Initialize prepares the router (no I/O)
func (r *Router) Initialize() error {
	if r.natsClient == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Router", "Initialize", "NATS client required")
	}
	return nil
}

// Start provisions the streams and begins consuming the ingress subject
func (r *Router) Start(ctx context.Context) error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	if r.running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Router", "Start", "check running state")
	}

	if _, err := r.natsClient.EnsureStream(ctx, jetstream.StreamConfig{
		Name:     message.StreamTelemetry,
		Subjects: []string{message.SubjectIngress},
	}); err != nil {
		return errors.Wrap(err, "Router", "Start", "ensure ingress stream")
	}

	if _, err := r.natsClient.EnsureStream(ctx, jetstream.StreamConfig{
		Name:     message.StreamReplicas,
		Subjects: []string{message.ReplicaSubjectPrefix + "*"},
	}); err != nil {
		return errors.Wrap(err, "Router", "Start", "ensure replica stream")
	}

	if err := r.natsClient.ConsumeDurable(ctx,
		message.StreamTelemetry, r.durable,
		[]string{message.SubjectIngress},
		r.handleMeasurement,
	); err != nil {
		return errors.Wrap(err, "Router", "Start", "start ingress consumer")
	}

	r.mu.Lock()
	r.running = true
	r.startTime = time.Now()
	r.mu.Unlock()

	r.logger.Info("Partition router started",
		"replicas", r.replicas,
		"ingress", message.SubjectIngress)

	return nil
}

// Stop stops the router. The consume loop is owned by the NATS client
// and stopped with it; there is nothing else to drain.
func (r *Router) Stop(_ time.Duration) error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	if !r.running {
		return nil
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.logger.Info("Partition router stopped",
		"processed", atomic.LoadInt64(&r.messagesProcessed),
		"dropped", atomic.LoadInt64(&r.messagesDropped))

	return nil
}

// handleMeasurement routes one ingress message. The payload is
// republished byte-identical; decoding only extracts the device
// identifier for partition assignment. The message is acknowledged only
// after the republish succeeded, so a crash between consume and publish
// redelivers rather than loses.
func (r *Router) handleMeasurement(ctx context.Context, _ string, data []byte) natsclient.Outcome {
	atomic.AddInt64(&r.messagesProcessed, 1)
	r.lastActivity.Store(time.Now().UnixNano())

	m, err := message.DecodeMeasurement(data)
	if err != nil {
		atomic.AddInt64(&r.messagesDropped, 1)
		r.metrics.recordDropped("malformed")
		r.logger.Warn("Dropping malformed measurement", "error", err)
		return natsclient.Discard
	}

	if m.DeviceID == "" {
		atomic.AddInt64(&r.messagesDropped, 1)
		r.metrics.recordDropped("missing_device_id")
		r.logger.Warn("Dropping measurement without device_id")
		return natsclient.Discard
	}

	replica := partition.Replica(m.DeviceID, r.replicas)
	subject := message.ReplicaSubject(replica)

	if err := r.natsClient.PublishToStream(ctx, subject, data); err != nil {
		atomic.AddInt64(&r.errorCount, 1)
		r.metrics.recordError("publish")
		r.logger.Error("Failed to republish measurement",
			"device_id", m.DeviceID,
			"replica", replica,
			"error", err)
		return natsclient.Reject
	}

	r.metrics.recordRouted(replica)
	r.logger.Debug("Routed measurement",
		"device_id", m.DeviceID,
		"replica", replica)

	return natsclient.Accept
}

// Discoverable interface implementation

// Meta returns metadata describing the router
func (r *Router) Meta() component.Metadata {
	return component.Metadata{
		Name:        r.name,
		Type:        "routing",
		Description: "Hash-partitions raw measurements across validator replicas",
		Version:     "1.0.0",
	}
}

// Health returns the current health status
func (r *Router) Health() component.HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return component.HealthStatus{
		Healthy:    r.running && r.natsClient.IsHealthy(),
		LastCheck:  time.Now(),
		ErrorCount: int(atomic.LoadInt64(&r.errorCount)),
		Uptime:     time.Since(r.startTime),
	}
}

// DataFlow returns current data flow metrics
func (r *Router) DataFlow() component.FlowMetrics {
	processed := atomic.LoadInt64(&r.messagesProcessed)
	errorCount := atomic.LoadInt64(&r.errorCount)

	var errorRate float64
	if processed > 0 {
		errorRate = float64(errorCount) / float64(processed)
	}

	return component.FlowMetrics{
		ErrorRate:    errorRate,
		LastActivity: time.Unix(0, r.lastActivity.Load()),
	}
}
