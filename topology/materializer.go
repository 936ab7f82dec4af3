package topology

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/gridstream/component"
	"github.com/c360/gridstream/errors"
	"github.com/c360/gridstream/message"
	"github.com/c360/gridstream/natsclient"
)

const componentName = "topology-materializer"

// Config holds configuration for the topology materializer
type Config struct {
	ReplicaID int `json:"replica_id"`
}

// Materializer consumes device lifecycle events and keeps this replica's
// ownership table current. Handlers are idempotent, so at-least-once
// delivery from the durable consumer is safe to replay.
type Materializer struct {
	name       string
	replicaID  int
	table      *Table
	natsClient *natsclient.Client
	logger     *slog.Logger

	// Lifecycle management
	running     bool
	startTime   time.Time
	mu          sync.RWMutex
	lifecycleMu sync.Mutex

	// Atomic counters for DataFlow
	eventsProcessed int64
	eventsDiscarded int64
	lastActivity    atomic.Int64 // unix nanos

	metrics *topologyMetrics
}

// NewMaterializer creates a topology materializer for one replica
func NewMaterializer(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	var config Config
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &config); err != nil {
			return nil, errors.WrapInvalid(err, "Materializer", "NewMaterializer", "config unmarshal")
		}
	}

	if config.ReplicaID < 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Materializer", "NewMaterializer",
			"replica_id cannot be negative")
	}

	metrics, err := newTopologyMetrics(deps.MetricsRegistry)
	if err != nil {
		deps.GetLogger().Error("Failed to initialize topology metrics", "error", err)
		metrics = nil
	}

	return &Materializer{
		name:       componentName,
		replicaID:  config.ReplicaID,
		table:      NewTable(),
		natsClient: deps.NATSClient,
		logger:     deps.GetLoggerWithComponent(componentName).With("replica", config.ReplicaID),
		metrics:    metrics,
	}, nil
}

// Table returns the ownership table this materializer maintains.
// Readers use its accessor methods; the consumer is the only writer.
func (mz *Materializer) Table() *Table {
	return mz.table
}

// Initialize prepares the materializer (no I/O)
func (mz *Materializer) Initialize() error {
	if mz.natsClient == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Materializer", "Initialize", "NATS client required")
	}
	return nil
}

// Start provisions the device stream and begins consuming events
func (mz *Materializer) Start(ctx context.Context) error {
	mz.lifecycleMu.Lock()
	defer mz.lifecycleMu.Unlock()

	if mz.running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Materializer", "Start", "check running state")
	}

	if _, err := mz.natsClient.EnsureStream(ctx, jetstream.StreamConfig{
		Name:     message.StreamDevices,
		Subjects: []string{message.SubjectDeviceWildcard},
	}); err != nil {
		return errors.Wrap(err, "Materializer", "Start", "ensure device stream")
	}

	if err := mz.natsClient.ConsumeDurable(ctx,
		message.StreamDevices, message.TopologyDurable(mz.replicaID),
		[]string{message.SubjectDeviceWildcard},
		mz.handleEvent,
	); err != nil {
		return errors.Wrap(err, "Materializer", "Start", "start device consumer")
	}

	mz.mu.Lock()
	mz.running = true
	mz.startTime = time.Now()
	mz.mu.Unlock()

	mz.logger.Info("Topology materializer started",
		"durable", message.TopologyDurable(mz.replicaID))

	return nil
}

// Stop stops the materializer. The table keeps its state; durable
// consumer position survives restarts, so only events after the cursor
// are replayed.
func (mz *Materializer) Stop(_ time.Duration) error {
	mz.lifecycleMu.Lock()
	defer mz.lifecycleMu.Unlock()

	if !mz.running {
		return nil
	}

	mz.mu.Lock()
	mz.running = false
	mz.mu.Unlock()

	mz.logger.Info("Topology materializer stopped",
		"devices", mz.table.DeviceCount(),
		"ownerships", mz.table.OwnershipCount())

	return nil
}

// handleEvent applies one device event to the table. A malformed event
// is logged and discarded; it must never take the consumer down.
func (mz *Materializer) handleEvent(_ context.Context, subject string, data []byte) natsclient.Outcome {
	atomic.AddInt64(&mz.eventsProcessed, 1)
	mz.lastActivity.Store(time.Now().UnixNano())

	kind := message.KindFromSubject(subject)
	ev, err := message.DecodeTopologyEvent(kind, data)
	if err != nil {
		atomic.AddInt64(&mz.eventsDiscarded, 1)
		mz.metrics.recordDiscarded(kind)
		mz.logger.Warn("Discarding malformed device event",
			"subject", subject,
			"error", err)
		return natsclient.Discard
	}

	switch ev.Kind {
	case message.DeviceCreated:
		mz.table.UpsertDevice(ev.DeviceID)
		mz.logger.Debug("Device created", "device_id", ev.DeviceID)
	case message.DeviceAssigned:
		mz.table.Assign(ev.DeviceID, ev.UserID)
		mz.logger.Debug("Device assigned", "device_id", ev.DeviceID, "user_id", ev.UserID)
	case message.DeviceUnassigned:
		mz.table.Unassign(ev.DeviceID)
		mz.logger.Debug("Device unassigned", "device_id", ev.DeviceID)
	case message.DeviceDeleted:
		mz.table.Delete(ev.DeviceID)
		mz.logger.Debug("Device deleted", "device_id", ev.DeviceID)
	}

	mz.metrics.recordApplied(ev.Kind)
	mz.metrics.setTableSizes(mz.table.DeviceCount(), mz.table.OwnershipCount())

	return natsclient.Accept
}

// Discoverable interface implementation

// Meta returns metadata describing the materializer
func (mz *Materializer) Meta() component.Metadata {
	return component.Metadata{
		Name:        mz.name,
		Type:        "processor",
		Description: "Materializes device lifecycle events into a local ownership table",
		Version:     "1.0.0",
	}
}

// Health returns the current health status
func (mz *Materializer) Health() component.HealthStatus {
	mz.mu.RLock()
	defer mz.mu.RUnlock()

	return component.HealthStatus{
		Healthy:    mz.running && mz.natsClient.IsHealthy(),
		LastCheck:  time.Now(),
		ErrorCount: int(atomic.LoadInt64(&mz.eventsDiscarded)),
		Uptime:     time.Since(mz.startTime),
	}
}

// DataFlow returns current data flow metrics
func (mz *Materializer) DataFlow() component.FlowMetrics {
	processed := atomic.LoadInt64(&mz.eventsProcessed)
	discarded := atomic.LoadInt64(&mz.eventsDiscarded)

	var errorRate float64
	if processed > 0 {
		errorRate = float64(discarded) / float64(processed)
	}

	return component.FlowMetrics{
		ErrorRate:    errorRate,
		LastActivity: time.Unix(0, mz.lastActivity.Load()),
	}
}
