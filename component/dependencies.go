package component

import (
	"log/slog"

	"github.com/c360/gridstream/metric"
	"github.com/c360/gridstream/natsclient"
)

// PlatformMeta provides platform identity to components
type PlatformMeta struct {
	Organization string `json:"organization"`
	Platform     string `json:"platform"`
}

// Dependencies provides all external dependencies needed by components.
// Components receive this structure at construction rather than individual
// fields, so wiring stays uniform across the platform.
type Dependencies struct {
	NATSClient      *natsclient.Client      // NATS client for messaging
	MetricsRegistry *metric.MetricsRegistry // Metrics registry for Prometheus (can be nil)
	Logger          *slog.Logger            // Structured logger (can be nil, defaults to slog.Default())
	Platform        PlatformMeta            // Platform identity (organization and platform)
}

// GetLogger returns the configured logger or a default logger if none is provided
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent returns a logger configured with component context
func (d *Dependencies) GetLoggerWithComponent(componentName string) *slog.Logger {
	return d.GetLogger().With("component", componentName)
}
