package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/gridstream/metric"
)

// ClientOption configures a Client at construction time
type ClientOption func(*Client) error

// WithLogger sets the logger for the client
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithName sets the connection name reported to the server
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}

// WithCredentials sets username/password authentication
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		c.username = username
		c.password = password
		return nil
	}
}

// WithMaxReconnects sets the maximum number of reconnect attempts.
// A negative value means reconnect forever.
func WithMaxReconnects(max int) ClientOption {
	return func(c *Client) error {
		c.maxReconnects = max
		return nil
	}
}

// WithReconnectWait sets the wait between reconnect attempts
func WithReconnectWait(wait time.Duration) ClientOption {
	return func(c *Client) error {
		if wait <= 0 {
			return fmt.Errorf("reconnect wait must be positive, got %v", wait)
		}
		c.reconnectWait = wait
		return nil
	}
}

// WithTimeout sets the connection timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", timeout)
		}
		c.timeout = timeout
		return nil
	}
}

// WithDrainTimeout sets the timeout for draining on close
func WithDrainTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) error {
		if timeout <= 0 {
			return fmt.Errorf("drain timeout must be positive, got %v", timeout)
		}
		c.drainTimeout = timeout
		return nil
	}
}

// WithCoreMetrics attaches the platform metrics so connection state
// transitions are recorded
func WithCoreMetrics(m *metric.Metrics) ClientOption {
	return func(c *Client) error {
		c.coreMetrics = m
		return nil
	}
}
