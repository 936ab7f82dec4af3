// Package validator implements the per-replica validator/persister: it
// checks each routed measurement against the replica's ownership table,
// persists accepted ones, and publishes them to the broadcast stream.
package validator

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

const componentName = "validator"

// MeasurementStore persists accepted measurements
type MeasurementStore interface {
	Insert(ctx context.Context, m message.Measurement) error
}

// OwnershipChecker answers exact device/user pair membership.
// Satisfied by the replica's topology table.
type OwnershipChecker interface {
	Owns(deviceID, userID string) bool
}

// Config holds configuration for one validator replica
type Config struct {
	ReplicaID int `json:"replica_id"`
}

// Validator consumes this replica's routed subject and applies the
// validate / persist / broadcast sequence to each measurement
type Validator struct {
	name       string
	replicaID  int
	store      MeasurementStore
	ownership  OwnershipChecker
	natsClient *natsclient.Client
	logger     *slog.Logger

	// Lifecycle management
	running     bool
	startTime   time.Time
	mu          sync.RWMutex
	lifecycleMu sync.Mutex

	// Atomic counters for DataFlow
	messagesProcessed int64
	messagesAccepted  int64
	messagesRejected  int64
	errorCount        int64
	lastActivity      atomic.Int64 // unix nanos

	metrics *validatorMetrics
}

// NewValidator creates a validator replica. The store and ownership
// checker are wired by the process, not pulled from config: the checker
// must be the table fed by this replica's own topology consumer.
func NewValidator(
	rawConfig json.RawMessage,
	deps component.Dependencies,
	store MeasurementStore,
	ownership OwnershipChecker,
) (component.Discoverable, error) {
	var config Config
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &config); err != nil {
			return nil, errors.WrapInvalid(err, "Validator", "NewValidator", "config unmarshal")
		}
	}

	if config.ReplicaID < 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Validator", "NewValidator",
			"replica_id cannot be negative")
	}
	if store == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Validator", "NewValidator",
			"measurement store required")
	}
	if ownership == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Validator", "NewValidator",
			"ownership checker required")
	}

	metrics, err := newValidatorMetrics(deps.MetricsRegistry)
	if err != nil {
		deps.GetLogger().Error("Failed to initialize validator metrics", "error", err)
		metrics = nil
	}

	return &Validator{
		name:       componentName,
		replicaID:  config.ReplicaID,
		store:      store,
		ownership:  ownership,
		natsClient: deps.NATSClient,
		logger:     deps.GetLoggerWithComponent(componentName).With("replica", config.ReplicaID),
		metrics:    metrics,
	}, nil
}

// Initialize prepares the validator (no I/O)
func (v *Validator) Initialize() error {
	if v.natsClient == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Validator", "Initialize", "NATS client required")
	}
	return nil
}

// Start provisions the replica stream and begins consuming this
// replica's routed subject. Provisioning is idempotent, so router and
// validators can start in any order against a fresh broker.
func (v *Validator) Start(ctx context.Context) error {
	v.lifecycleMu.Lock()
	defer v.lifecycleMu.Unlock()

	if v.running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Validator", "Start", "check running state")
	}

	if _, err := v.natsClient.EnsureStream(ctx, jetstream.StreamConfig{
		Name:     message.StreamReplicas,
		Subjects: []string{message.ReplicaSubjectPrefix + "*"},
	}); err != nil {
		return errors.Wrap(err, "Validator", "Start", "ensure replica stream")
	}

	subject := message.ReplicaSubject(v.replicaID)
	if err := v.natsClient.ConsumeDurable(ctx,
		message.StreamReplicas, message.ReplicaDurable(v.replicaID),
		[]string{subject},
		v.handleMeasurement,
	); err != nil {
		return errors.Wrap(err, "Validator", "Start", "start replica consumer")
	}

	v.mu.Lock()
	v.running = true
	v.startTime = time.Now()
	v.mu.Unlock()

	v.logger.Info("Validator started", "subject", subject)

	return nil
}

// Stop stops the validator
func (v *Validator) Stop(_ time.Duration) error {
	v.lifecycleMu.Lock()
	defer v.lifecycleMu.Unlock()

	if !v.running {
		return nil
	}

	v.mu.Lock()
	v.running = false
	v.mu.Unlock()

	v.logger.Info("Validator stopped",
		"accepted", atomic.LoadInt64(&v.messagesAccepted),
		"rejected", atomic.LoadInt64(&v.messagesRejected))

	return nil
}

// handleMeasurement applies the full sequence to one routed measurement:
// decode, ownership check, persist, broadcast. The persist must succeed
// before the message is acknowledged; a store failure naks for
// redelivery so the measurement survives the outage. A broadcast failure
// after persist is logged but still acknowledged, because redelivering
// would persist the measurement twice.
func (v *Validator) handleMeasurement(ctx context.Context, _ string, data []byte) natsclient.Outcome {
	atomic.AddInt64(&v.messagesProcessed, 1)
	v.lastActivity.Store(time.Now().UnixNano())

	start := time.Now()

	m, err := message.DecodeMeasurement(data)
	if err == nil {
		err = m.Validate()
	}
	if err != nil {
		atomic.AddInt64(&v.messagesRejected, 1)
		v.metrics.recordOutcome("malformed")
		v.logger.Warn("Discarding malformed measurement", "error", err)
		return natsclient.Discard
	}

	if !v.ownership.Owns(m.DeviceID, m.UserID) {
		atomic.AddInt64(&v.messagesRejected, 1)
		v.metrics.recordOutcome("ownership_mismatch")
		v.logger.Info("Discarding measurement without ownership",
			"device_id", m.DeviceID,
			"user_id", m.UserID)
		return natsclient.Discard
	}

	if err := v.store.Insert(ctx, m); err != nil {
		atomic.AddInt64(&v.errorCount, 1)
		v.metrics.recordOutcome("persist_failure")
		v.logger.Error("Failed to persist measurement, requesting redelivery",
			"device_id", m.DeviceID,
			"error", err)
		return natsclient.Retry
	}

	envelope := message.MeasurementEnvelope(m)
	payload, err := envelope.Encode()
	if err == nil {
		err = v.natsClient.Publish(ctx, message.SubjectBroadcast, payload)
	}
	if err != nil {
		atomic.AddInt64(&v.errorCount, 1)
		v.metrics.recordOutcome("broadcast_failure")
		v.logger.Warn("Persisted measurement but broadcast failed",
			"device_id", m.DeviceID,
			"error", err)
	}

	atomic.AddInt64(&v.messagesAccepted, 1)
	v.metrics.recordOutcome("accepted")
	v.metrics.observeDuration(time.Since(start))

	return natsclient.Accept
}

// Discoverable interface implementation

// Meta returns metadata describing the validator
func (v *Validator) Meta() component.Metadata {
	return component.Metadata{
		Name:        v.name,
		Type:        "processor",
		Description: "Validates measurements against device ownership, persists and broadcasts them",
		Version:     "1.0.0",
	}
}

// Health returns the current health status
func (v *Validator) Health() component.HealthStatus {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return component.HealthStatus{
		Healthy:    v.running && v.natsClient.IsHealthy(),
		LastCheck:  time.Now(),
		ErrorCount: int(atomic.LoadInt64(&v.errorCount)),
		Uptime:     time.Since(v.startTime),
	}
}

// DataFlow returns current data flow metrics
func (v *Validator) DataFlow() component.FlowMetrics {
	processed := atomic.LoadInt64(&v.messagesProcessed)
	errorCount := atomic.LoadInt64(&v.errorCount)

	var errorRate float64
	if processed > 0 {
		errorRate = float64(errorCount) / float64(processed)
	}

	return component.FlowMetrics{
		ErrorRate:    errorRate,
		LastActivity: time.Unix(0, v.lastActivity.Load()),
	}
}
