// Package natsclient provides a client for managing NATS and JetStream
// connections, with fixed-backoff reconnect for startup and durable
// consumers driven by explicit handler outcomes.
package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/gridstream/errors"
	"github.com/c360/gridstream/metric"
	"github.com/c360/gridstream/pkg/retry"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Error messages
var (
	ErrNotConnected = stderrors.New("not connected to NATS")
)

// ConsumeHandler processes one delivered message and reports the outcome.
// The subject is included because topic-style consumers (the topology
// stream) dispatch on it.
type ConsumeHandler func(ctx context.Context, subject string, data []byte) Outcome

// Client manages a NATS connection, its JetStream context, and the
// subscriptions and durable consumers created through it.
type Client struct {
	url    string
	status atomic.Value // stores ConnectionStatus
	logger *slog.Logger

	conn *nats.Conn
	js   jetstream.JetStream
	subs []*nats.Subscription

	consumers   map[string]jetstream.ConsumeContext
	consumersMu sync.Mutex

	// Connection options
	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration
	clientName    string

	// Authentication - cleared on close
	username string
	password string

	coreMetrics *metric.Metrics

	mu      sync.RWMutex
	closeMu sync.Mutex
	closed  atomic.Bool
}

// NewClient creates a new NATS client with optional configuration
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:           url,
		logger:        slog.Default(),
		maxReconnects: -1, // infinite by default
		reconnectWait: 2 * time.Second,
		pingInterval:  30 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  30 * time.Second,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}

	c.status.Store(StatusDisconnected)

	return c, nil
}

// URL returns the NATS server URL
func (m *Client) URL() string {
	return m.url
}

// Status returns the current connection status
func (m *Client) Status() ConnectionStatus {
	val := m.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnectionStatus)
}

// IsHealthy returns true if the connection is healthy
func (m *Client) IsHealthy() bool {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	return conn != nil && conn.IsConnected()
}

func (m *Client) setStatus(status ConnectionStatus) {
	m.status.Store(status)
	if m.coreMetrics != nil {
		m.coreMetrics.RecordNATSStatus(status == StatusConnected)
	}
}

// buildConnectionOptions builds NATS connection options from client configuration
func (m *Client) buildConnectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(m.maxReconnects),
		nats.ReconnectWait(m.reconnectWait),
		nats.PingInterval(m.pingInterval),
		nats.Timeout(m.timeout),
		nats.DrainTimeout(m.drainTimeout),
		nats.DisconnectErrHandler(m.handleDisconnect),
		nats.ReconnectHandler(m.handleReconnect),
		nats.ClosedHandler(m.handleClosed),
	}

	if m.username != "" && m.password != "" {
		opts = append(opts, nats.UserInfo(m.username, m.password))
	}
	if m.clientName != "" {
		opts = append(opts, nats.Name(m.clientName))
	}

	return opts
}

func (m *Client) handleDisconnect(_ *nats.Conn, err error) {
	m.setStatus(StatusReconnecting)
	if err != nil {
		m.logger.Warn("NATS disconnected", "url", m.url, "error", err)
	}
}

func (m *Client) handleReconnect(_ *nats.Conn) {
	m.setStatus(StatusConnected)
	m.logger.Info("NATS reconnected", "url", m.url)
	if m.coreMetrics != nil {
		m.coreMetrics.RecordNATSReconnect()
	}
}

func (m *Client) handleClosed(_ *nats.Conn) {
	m.setStatus(StatusDisconnected)
}

// Connect establishes a connection to the NATS server
func (m *Client) Connect(ctx context.Context) error {
	m.setStatus(StatusConnecting)
	m.logger.Info("Connecting to NATS", "url", m.url)

	connectDone := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(m.url, m.buildConnectionOptions()...)
		if err != nil {
			connectDone <- err
			return
		}

		js, err := jetstream.New(conn)
		if err != nil {
			conn.Close()
			connectDone <- err
			return
		}

		m.mu.Lock()
		m.conn = conn
		m.js = js
		m.mu.Unlock()

		connectDone <- nil
	}()

	select {
	case err := <-connectDone:
		if err != nil {
			m.setStatus(StatusDisconnected)
			return errors.WrapTransient(err, "Client", "Connect", "establish connection")
		}
	case <-ctx.Done():
		m.setStatus(StatusDisconnected)
		return errors.WrapTransient(ctx.Err(), "Client", "Connect", "connection cancelled")
	}

	m.setStatus(StatusConnected)
	m.logger.Info("Connected to NATS", "url", m.url)

	return nil
}

// ConnectWithRetry connects with unbounded fixed-backoff retries. The broker
// being down at process start is a transport failure, not an exit condition.
func (m *Client) ConnectWithRetry(ctx context.Context, delay time.Duration) error {
	attempt := 0
	return retry.Forever(ctx, delay, func() error {
		attempt++
		err := m.Connect(ctx)
		if err != nil {
			m.logger.Warn("NATS connection failed, retrying",
				"url", m.url,
				"attempt", attempt,
				"retry_in", delay)
		}
		return err
	})
}

// Close closes the NATS connection after stopping consumers and draining
func (m *Client) Close(ctx context.Context) error {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()

	if m.closed.Load() {
		return nil
	}
	m.closed.Store(true)

	m.consumersMu.Lock()
	for name, consumer := range m.consumers {
		consumer.Stop()
		m.logger.Debug("Stopped consumer", "name", name)
	}
	m.consumers = nil
	m.consumersMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error

	for _, sub := range m.subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, errors.Wrap(err, "Client", "Close", "unsubscribe"))
		}
	}
	m.subs = nil

	if m.conn != nil {
		drainTimeout := m.drainTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining > 0 && remaining < drainTimeout {
				drainTimeout = remaining
			}
		}

		drainDone := make(chan error, 1)
		go func() {
			drainDone <- m.conn.Drain()
		}()

		select {
		case err := <-drainDone:
			if err != nil {
				errs = append(errs, errors.Wrap(err, "Client", "Close", "drain connection"))
			}
		case <-time.After(drainTimeout):
			errs = append(errs, errors.WrapTransient(
				fmt.Errorf("drain timeout after %v", drainTimeout),
				"Client", "Close", "drain timeout"))
		case <-ctx.Done():
			errs = append(errs, errors.Wrap(ctx.Err(), "Client", "Close", "context cancelled during drain"))
		}

		m.conn.Close()
		m.conn = nil
	}

	// Clear credentials from memory
	m.username = ""
	m.password = ""

	m.setStatus(StatusDisconnected)

	return stderrors.Join(errs...)
}

// Publish publishes a message on a core NATS subject. Used for the
// broadcast stream, where delivery to currently-connected subscribers
// only is exactly the semantics wanted.
func (m *Client) Publish(_ context.Context, subject string, data []byte) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return ErrNotConnected
	}

	return conn.Publish(subject, data)
}

// Subscribe subscribes to a core NATS subject with context propagation.
// Each handler invocation receives a context derived from the parent with
// a 30-second processing timeout.
func (m *Client) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || !m.conn.IsConnected() {
		return ErrNotConnected
	}

	sub, err := m.conn.Subscribe(subject, func(msg *nats.Msg) {
		msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		handler(msgCtx, msg.Data)
	})
	if err != nil {
		return err
	}

	m.subs = append(m.subs, sub)
	return nil
}

// JetStream returns the JetStream context
func (m *Client) JetStream() (jetstream.JetStream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.js == nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("JetStream not initialized"),
			"Client", "JetStream", "get JetStream context")
	}

	return m.js, nil
}

// EnsureStream creates the stream if it does not exist and updates it if it
// does. Stream provisioning is idempotent so every process can declare the
// topology it consumes from, mirroring queue declaration on connect.
func (m *Client) EnsureStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	if !m.IsHealthy() {
		return nil, ErrNotConnected
	}

	js, err := m.JetStream()
	if err != nil {
		return nil, err
	}

	stream, err := js.CreateOrUpdateStream(ctx, cfg)
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "EnsureStream",
			fmt.Sprintf("create or update stream %s", cfg.Name))
	}

	return stream, nil
}

// PublishToStream publishes to a JetStream-backed subject and waits for the
// broker acknowledgement, so callers can order their own acks after it.
func (m *Client) PublishToStream(ctx context.Context, subject string, data []byte) error {
	if !m.IsHealthy() {
		return ErrNotConnected
	}

	js, err := m.JetStream()
	if err != nil {
		return err
	}

	if _, err := js.Publish(ctx, subject, data); err != nil {
		return errors.WrapTransient(err, "Client", "PublishToStream",
			fmt.Sprintf("publish to %s", subject))
	}

	return nil
}

// ConsumeDurable creates (or resumes) a durable consumer on a stream and
// starts a pull loop. The handler's Outcome decides acknowledgement:
// Accept and Discard ack, Retry naks for redelivery, Reject terminates the
// message so it is neither redelivered nor counted as processed.
func (m *Client) ConsumeDurable(
	ctx context.Context,
	streamName, durableName string,
	filterSubjects []string,
	handler ConsumeHandler,
) error {
	if !m.IsHealthy() {
		return ErrNotConnected
	}

	js, err := m.JetStream()
	if err != nil {
		return err
	}

	if m.closed.Load() {
		return errors.WrapInvalid(
			fmt.Errorf("client is closed"),
			"Client", "ConsumeDurable", "check client state")
	}

	consumerCfg := jetstream.ConsumerConfig{
		Durable:        durableName,
		FilterSubjects: filterSubjects,
		AckPolicy:      jetstream.AckExplicitPolicy,
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, streamName, consumerCfg)
	if err != nil {
		return errors.WrapTransient(err, "Client", "ConsumeDurable",
			fmt.Sprintf("create consumer %s on stream %s", durableName, streamName))
	}

	consumeContext, err := consumer.Consume(func(msg jetstream.Msg) {
		msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		outcome := handler(msgCtx, msg.Subject(), msg.Data())
		m.acknowledge(msg, outcome)
	})
	if err != nil {
		return errors.WrapTransient(err, "Client", "ConsumeDurable",
			fmt.Sprintf("start consume loop for %s", durableName))
	}

	m.consumersMu.Lock()
	defer m.consumersMu.Unlock()

	if m.closed.Load() {
		consumeContext.Stop()
		return errors.WrapInvalid(
			fmt.Errorf("client is closing"),
			"Client", "ConsumeDurable", "register consumer during shutdown")
	}

	if m.consumers == nil {
		m.consumers = make(map[string]jetstream.ConsumeContext)
	}
	m.consumers[fmt.Sprintf("%s:%s", streamName, durableName)] = consumeContext

	return nil
}

// acknowledge maps a handler outcome onto the JetStream acknowledgement
func (m *Client) acknowledge(msg jetstream.Msg, outcome Outcome) {
	var err error
	switch outcome {
	case Accept, Discard:
		err = msg.Ack()
	case Retry:
		err = msg.Nak()
	case Reject:
		err = msg.Term()
	default:
		m.logger.Error("Unknown handler outcome, terminating message",
			"outcome", int(outcome), "subject", msg.Subject())
		err = msg.Term()
	}

	if err != nil {
		m.logger.Warn("Acknowledgement failed",
			"outcome", outcome.String(),
			"subject", msg.Subject(),
			"error", err)
	}
}
