package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/c360/gridstream/component"
	"github.com/c360/gridstream/errors"
	"github.com/c360/gridstream/message"
	"github.com/c360/gridstream/natsclient"
)

const componentName = "fanout-broadcaster"

// Config holds configuration for the broadcaster
type Config struct {
	Port           int  `json:"port,omitempty"`
	SendBufferSize int  `json:"send_buffer_size,omitempty"`
	CheckOrigin    bool `json:"check_origin,omitempty"`
}

// DefaultConfig returns the default broadcaster configuration
func DefaultConfig() Config {
	return Config{
		Port:           8765,
		SendBufferSize: 64,
	}
}

// Broadcaster serves WebSocket clients and fans broadcast events out to
// them by device and user registration
type Broadcaster struct {
	name       string
	port       int
	sendBuffer int
	natsClient *natsclient.Client
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	hub        *hub

	server *http.Server

	// Lifecycle management
	running     bool
	startTime   time.Time
	mu          sync.RWMutex
	lifecycleMu sync.Mutex
	wg          sync.WaitGroup

	// Atomic counters for DataFlow
	envelopesReceived int64
	messagesDelivered int64
	errorCount        int64
	lastActivity      atomic.Int64 // unix nanos

	metrics *broadcastMetrics
}

// NewBroadcaster creates a fan-out broadcaster from configuration
func NewBroadcaster(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &config); err != nil {
			return nil, errors.WrapInvalid(err, "Broadcaster", "NewBroadcaster", "config unmarshal")
		}
	}

	if config.Port < 1024 || config.Port > 65535 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Broadcaster", "NewBroadcaster",
			fmt.Sprintf("invalid port %d (out of range 1024-65535)", config.Port))
	}
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 64
	}

	checkOrigin := func(_ *http.Request) bool { return true }
	if config.CheckOrigin {
		checkOrigin = nil // gorilla default: same-origin only
	}

	metrics, err := newBroadcastMetrics(deps.MetricsRegistry)
	if err != nil {
		deps.GetLogger().Error("Failed to initialize broadcaster metrics", "error", err)
		metrics = nil
	}

	return &Broadcaster{
		name:       componentName,
		port:       config.Port,
		sendBuffer: config.SendBufferSize,
		natsClient: deps.NATSClient,
		logger:     deps.GetLoggerWithComponent(componentName),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		hub:     newHub(),
		metrics: metrics,
	}, nil
}

// Initialize prepares the broadcaster (no I/O)
func (b *Broadcaster) Initialize() error {
	if b.natsClient == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Broadcaster", "Initialize", "NATS client required")
	}
	return nil
}

// routes builds the WebSocket endpoints. Monitoring clients register
// under both user and device; chat clients register under user only.
func (b *Broadcaster) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws/chat/{user_id}", b.handleChatSocket)
	r.Get("/ws/{user_id}/{device_id}", b.handleMonitorSocket)
	return r
}

// Start subscribes to the broadcast subject and starts the WebSocket server
func (b *Broadcaster) Start(ctx context.Context) error {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	if b.running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Broadcaster", "Start", "check running state")
	}

	if err := b.natsClient.Subscribe(ctx, message.SubjectBroadcast, b.handleEnvelope); err != nil {
		return errors.Wrap(err, "Broadcaster", "Start", "subscribe to broadcast subject")
	}

	b.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", b.port),
		Handler:           b.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	b.wg.Add(1)
	go b.runServer()

	b.mu.Lock()
	b.running = true
	b.startTime = time.Now()
	b.mu.Unlock()

	b.logger.Info("Fan-out broadcaster started", "port", b.port)

	return nil
}

func (b *Broadcaster) runServer() {
	defer b.wg.Done()

	if err := b.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		atomic.AddInt64(&b.errorCount, 1)
		b.logger.Error("WebSocket server failed", "error", err)
	}
}

// Stop shuts the server down and disconnects every client
func (b *Broadcaster) Stop(timeout time.Duration) error {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	server := b.server
	b.server = nil
	b.mu.Unlock()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			b.logger.Warn("WebSocket server shutdown error", "error", err)
		}
	}

	// Shutdown does not touch hijacked connections, so close every
	// client or the read pumps would block until their pong deadline.
	b.disconnectAll()

	waitCh := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("shutdown timeout after %v", timeout),
			"Broadcaster", "Stop", "graceful shutdown")
	}

	b.logger.Info("Fan-out broadcaster stopped")
	return nil
}

// handleMonitorSocket upgrades /ws/{user_id}/{device_id} connections
func (b *Broadcaster) handleMonitorSocket(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	deviceID := chi.URLParam(r, "device_id")
	b.acceptClient(w, r, userID, deviceID)
}

// handleChatSocket upgrades /ws/chat/{user_id} connections
func (b *Broadcaster) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	b.acceptClient(w, r, userID, "")
}

// acceptClient upgrades the connection, registers it, and starts its
// pumps. Registration happens before the pumps start, so a client never
// receives events published before it registered.
func (b *Broadcaster) acceptClient(w http.ResponseWriter, r *http.Request, userID, deviceID string) {
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		atomic.AddInt64(&b.errorCount, 1)
		b.metrics.recordError("upgrade")
		b.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	c := newClient(conn, userID, deviceID, b.sendBuffer)
	b.hub.register(c)
	b.metrics.setConnected(b.hub.connectionCount())

	b.logger.Debug("Client connected",
		"client_id", c.id,
		"user_id", userID,
		"device_id", deviceID)

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		c.writePump()
	}()
	go func() {
		defer b.wg.Done()
		c.readPump(b.disconnect)
	}()
}

// disconnectAll disconnects every registered client
func (b *Broadcaster) disconnectAll() {
	for _, c := range b.hub.allClients() {
		b.disconnect(c)
	}
}

// disconnect removes a client from the registries. Terminal.
func (b *Broadcaster) disconnect(c *client) {
	c.close()
	b.hub.unregister(c)
	b.metrics.setConnected(b.hub.connectionCount())

	b.logger.Debug("Client disconnected",
		"client_id", c.id,
		"user_id", c.userID,
		"device_id", c.deviceID)
}

// handleEnvelope classifies one broadcast event and enqueues it to the
// matching registrations. Device events reach device subscribers; chat
// and alert events additionally reach the user's connections. Plain
// measurements are never delivered through the user registry.
func (b *Broadcaster) handleEnvelope(_ context.Context, data []byte) {
	atomic.AddInt64(&b.envelopesReceived, 1)
	b.lastActivity.Store(time.Now().UnixNano())
	b.metrics.recordReceived()

	env, err := message.DecodeEnvelope(data)
	if err != nil {
		atomic.AddInt64(&b.errorCount, 1)
		b.metrics.recordError("decode")
		b.logger.Warn("Discarding malformed broadcast envelope", "error", err)
		return
	}

	delivered := make(map[*client]struct{})

	if env.DeviceID != "" {
		for _, c := range b.hub.deviceClients(env.DeviceID) {
			b.deliver(c, data, delivered)
		}
	}

	if env.UserDeliverable() {
		for _, c := range b.hub.userClients(env.UserID) {
			b.deliver(c, data, delivered)
		}
	}
}

// deliver enqueues to one client at most once per envelope. A client
// that cannot accept the message is disconnected; fan-out to the rest
// continues.
func (b *Broadcaster) deliver(c *client, data []byte, delivered map[*client]struct{}) {
	if _, done := delivered[c]; done {
		return
	}
	delivered[c] = struct{}{}

	if c.enqueue(data) {
		atomic.AddInt64(&b.messagesDelivered, 1)
		b.metrics.recordDelivered()
		return
	}

	atomic.AddInt64(&b.errorCount, 1)
	b.metrics.recordError("send_buffer_full")
	b.logger.Warn("Disconnecting slow client",
		"client_id", c.id,
		"user_id", c.userID)
	b.disconnect(c)
}

// Discoverable interface implementation

// Meta returns metadata describing the broadcaster
func (b *Broadcaster) Meta() component.Metadata {
	return component.Metadata{
		Name:        b.name,
		Type:        "output",
		Description: fmt.Sprintf("WebSocket fan-out server on port %d", b.port),
		Version:     "1.0.0",
	}
}

// Health returns the current health status
func (b *Broadcaster) Health() component.HealthStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return component.HealthStatus{
		Healthy:    b.running && b.natsClient.IsHealthy(),
		LastCheck:  time.Now(),
		ErrorCount: int(atomic.LoadInt64(&b.errorCount)),
		Uptime:     time.Since(b.startTime),
	}
}

// DataFlow returns current data flow metrics
func (b *Broadcaster) DataFlow() component.FlowMetrics {
	received := atomic.LoadInt64(&b.envelopesReceived)
	errorCount := atomic.LoadInt64(&b.errorCount)

	var errorRate float64
	if received > 0 {
		errorRate = float64(errorCount) / float64(received)
	}

	return component.FlowMetrics{
		ErrorRate:    errorRate,
		LastActivity: time.Unix(0, b.lastActivity.Load()),
	}
}
