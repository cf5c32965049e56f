package rtm

import (
	"log/slog"
	"time"

	"github.com/omochice/rtm-client/internal/transport"
	"golang.org/x/time/rate"
)

// Option configures a Client.
type Option func(*Client)

// WithDialer sets the transport used to open the connection.
func WithDialer(d transport.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMetrics sets the collectors updated by the client.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithHandshakeTimeout bounds the opening handshake. Zero disables the bound.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.handshakeTimeout = d
	}
}

// WithDiagnosticRate limits how many per-frame diagnostics are logged.
// Frames are still dropped and counted when their log line is suppressed.
func WithDiagnosticRate(every time.Duration, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Every(every), burst)
	}
}
