// Package http provides the HTTP gateway serving historical consumption
// queries from the measurement store.
package http

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
	"github.com/go-chi/chi/v5/middleware"

	"github.com/c360/gridstream/component"
	"github.com/c360/gridstream/errors"
	"github.com/c360/gridstream/storage/postgres"
)

const componentName = "http-gateway"

// dateLayout is the format of the ?date= query parameter
const dateLayout = "2006-01-02"

// Config holds configuration for the HTTP gateway
type Config struct {
	Port           int   `json:"port,omitempty"`
	RequestTimeout int64 `json:"request_timeout_seconds,omitempty"`
}

// DefaultConfig returns the default gateway configuration
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		RequestTimeout: 10,
	}
}

// HistoryStore answers aggregated consumption queries
type HistoryStore interface {
	HourlyTotals(ctx context.Context, deviceID string, date time.Time) ([]postgres.HourlyTotal, error)
	Ping(ctx context.Context) error
}

// Gateway serves the monitoring history API over HTTP
type Gateway struct {
	name    string
	port    int
	timeout time.Duration
	store   HistoryStore
	logger  *slog.Logger

	server *http.Server

	// Lifecycle management
	running     bool
	startTime   time.Time
	mu          sync.RWMutex
	lifecycleMu sync.Mutex
	wg          sync.WaitGroup

	// Atomic counters for DataFlow
	requestsTotal  int64
	requestsFailed int64
	lastActivity   atomic.Int64 // unix nanos

	metrics *gatewayMetrics
}

// NewGateway creates an HTTP gateway from configuration. The store is
// wired by the process rather than pulled from config so tests can
// substitute their own.
func NewGateway(rawConfig json.RawMessage, deps component.Dependencies, store HistoryStore) (component.Discoverable, error) {
	config := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &config); err != nil {
			return nil, errors.WrapInvalid(err, "Gateway", "NewGateway", "config unmarshal")
		}
	}

	if config.Port < 1024 || config.Port > 65535 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "NewGateway",
			fmt.Sprintf("invalid port %d (out of range 1024-65535)", config.Port))
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 10
	}
	if store == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Gateway", "NewGateway",
			"history store is required")
	}

	metrics, err := newGatewayMetrics(deps.MetricsRegistry)
	if err != nil {
		deps.GetLogger().Error("Failed to initialize gateway metrics", "error", err)
		metrics = nil
	}

	return &Gateway{
		name:    componentName,
		port:    config.Port,
		timeout: time.Duration(config.RequestTimeout) * time.Second,
		store:   store,
		logger:  deps.GetLoggerWithComponent(componentName),
		metrics: metrics,
	}, nil
}

// Initialize prepares the gateway (no I/O)
func (g *Gateway) Initialize() error {
	return nil
}

// routes builds the API router
func (g *Gateway) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(g.timeout))
	r.Use(g.requestLogger)

	r.Get("/monitoring/history/{device_id}", g.handleHistory)
	r.Get("/healthz", g.handleHealthz)
	return r
}

// requestLogger logs one line per request with the chi request id
func (g *Gateway) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		g.logger.Debug("Request handled",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// Start begins serving HTTP requests
func (g *Gateway) Start(_ context.Context) error {
	g.lifecycleMu.Lock()
	defer g.lifecycleMu.Unlock()

	if g.running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Gateway", "Start", "check running state")
	}

	g.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", g.port),
		Handler:           g.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.wg.Add(1)
	go g.runServer()

	g.mu.Lock()
	g.running = true
	g.startTime = time.Now()
	g.mu.Unlock()

	g.logger.Info("HTTP gateway started", "port", g.port)

	return nil
}

func (g *Gateway) runServer() {
	defer g.wg.Done()

	if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		atomic.AddInt64(&g.requestsFailed, 1)
		g.logger.Error("HTTP server failed", "error", err)
	}
}

// Stop gracefully shuts the gateway down
func (g *Gateway) Stop(timeout time.Duration) error {
	g.lifecycleMu.Lock()
	defer g.lifecycleMu.Unlock()

	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return nil
	}
	g.running = false
	server := g.server
	g.server = nil
	g.mu.Unlock()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			g.logger.Warn("HTTP server shutdown error", "error", err)
		}
	}

	g.wg.Wait()
	g.logger.Info("HTTP gateway stopped")
	return nil
}

// handleHistory serves GET /monitoring/history/{device_id}?date=YYYY-MM-DD
// with hourly consumption totals for the requested day.
func (g *Gateway) handleHistory(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	atomic.AddInt64(&g.requestsTotal, 1)
	g.lastActivity.Store(start.UnixNano())

	deviceID := chi.URLParam(r, "device_id")
	dateParam := r.URL.Query().Get("date")
	if dateParam == "" {
		g.metrics.recordRequest("history", http.StatusBadRequest)
		g.writeError(w, http.StatusBadRequest, "date query parameter is required")
		return
	}

	date, err := time.Parse(dateLayout, dateParam)
	if err != nil {
		g.metrics.recordRequest("history", http.StatusBadRequest)
		g.writeError(w, http.StatusBadRequest,
			fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", dateParam))
		return
	}

	totals, err := g.store.HourlyTotals(r.Context(), deviceID, date)
	if err != nil {
		g.metrics.recordRequest("history", http.StatusInternalServerError)
		g.logger.Error("History query failed",
			"device_id", deviceID,
			"date", dateParam,
			"error", err)
		g.writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}

	// A device with no data for the day gets an empty array, not null.
	if totals == nil {
		totals = []postgres.HourlyTotal{}
	}

	g.metrics.recordRequest("history", http.StatusOK)
	g.metrics.observeDuration(time.Since(start))
	g.writeJSON(w, http.StatusOK, totals)
}

// handleHealthz reports gateway and store reachability
func (g *Gateway) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := g.store.Ping(r.Context()); err != nil {
		g.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Warn("Failed to write response", "error", err)
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, status int, msg string) {
	if status >= http.StatusInternalServerError {
		atomic.AddInt64(&g.requestsFailed, 1)
	}
	g.writeJSON(w, status, map[string]any{
		"error":  msg,
		"status": status,
	})
}

// Discoverable interface implementation

// Meta returns metadata describing the gateway
func (g *Gateway) Meta() component.Metadata {
	return component.Metadata{
		Name:        g.name,
		Type:        "gateway",
		Description: fmt.Sprintf("HTTP API for consumption history on port %d", g.port),
		Version:     "1.0.0",
	}
}

// Health returns the current health status
func (g *Gateway) Health() component.HealthStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return component.HealthStatus{
		Healthy:    g.running,
		LastCheck:  time.Now(),
		ErrorCount: int(atomic.LoadInt64(&g.requestsFailed)),
		Uptime:     time.Since(g.startTime),
	}
}

// DataFlow returns current data flow metrics
func (g *Gateway) DataFlow() component.FlowMetrics {
	total := atomic.LoadInt64(&g.requestsTotal)
	failed := atomic.LoadInt64(&g.requestsFailed)

	var errorRate float64
	if total > 0 {
		errorRate = float64(failed) / float64(total)
	}

	return component.FlowMetrics{
		ErrorRate:    errorRate,
		LastActivity: time.Unix(0, g.lastActivity.Load()),
	}
}
