package middleware

import (
	"log/slog"
	"os"
	"time"

	"github.com/armish/fireplace/pkg/log"
	"github.com/armish/fireplace/pkg/metrics"
	"github.com/armish/fireplace/pkg/transport"
)

// Default worker parameters.
const (
	DefaultSyncRecvTimeout  = 300 * time.Millisecond
	DefaultSyncSendTimeout  = 300 * time.Millisecond
	DefaultAsyncSendTimeout = 300 * time.Millisecond
	DefaultAsyncWaitTimeout = 300 * time.Millisecond

	// DefaultThreshold is the number of queued items that releases a batch.
	DefaultThreshold = 100

	// DefaultMaxTimeouts is the number of consecutive threshold timeouts
	// after which the queue is flushed anyway.
	DefaultMaxTimeouts = 4
)

// ListenFunc binds a socket to an endpoint.
type ListenFunc func(endpoint string, opts transport.Options) (transport.Socket, error)

// Config configures a Server.
type Config struct {
	// SyncRecvTimeout bounds each receive on the inbound endpoint. It is also
	// how often the sync worker checks for shutdown.
	SyncRecvTimeout time.Duration

	// SyncSendTimeout bounds each response send.
	SyncSendTimeout time.Duration

	// AsyncSendTimeout bounds each item send on the outbound endpoint.
	AsyncSendTimeout time.Duration

	// AsyncWaitTimeout bounds each threshold wait.
	AsyncWaitTimeout time.Duration

	// Threshold is the queue release threshold.
	Threshold int

	// MaxTimeouts is the number of consecutive threshold timeouts before a
	// forced flush.
	MaxTimeouts int

	// MaxMessageSize limits inbound requests (default: transport default).
	MaxMessageSize uint32

	// Listen binds worker sockets (default: transport.Listen).
	Listen ListenFunc

	// OnFatal is called for unrecoverable worker errors. The default logs
	// the error and exits the process.
	OnFatal func(error)

	// Logger receives operational logs (default: slog.Default()).
	Logger *slog.Logger

	// ProtocolLogger receives frame, message and state events (optional).
	ProtocolLogger log.Logger

	// Metrics records worker activity (optional).
	Metrics *metrics.Metrics
}

// DefaultConfig returns a configuration with the default timeouts.
func DefaultConfig() Config {
	return Config{
		SyncRecvTimeout:  DefaultSyncRecvTimeout,
		SyncSendTimeout:  DefaultSyncSendTimeout,
		AsyncSendTimeout: DefaultAsyncSendTimeout,
		AsyncWaitTimeout: DefaultAsyncWaitTimeout,
		Threshold:        DefaultThreshold,
		MaxTimeouts:      DefaultMaxTimeouts,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.SyncRecvTimeout <= 0 {
		c.SyncRecvTimeout = d.SyncRecvTimeout
	}
	if c.SyncSendTimeout <= 0 {
		c.SyncSendTimeout = d.SyncSendTimeout
	}
	if c.AsyncSendTimeout <= 0 {
		c.AsyncSendTimeout = d.AsyncSendTimeout
	}
	if c.AsyncWaitTimeout <= 0 {
		c.AsyncWaitTimeout = d.AsyncWaitTimeout
	}
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.MaxTimeouts <= 0 {
		c.MaxTimeouts = d.MaxTimeouts
	}
	if c.Listen == nil {
		c.Listen = transport.Listen
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.OnFatal == nil {
		logger := c.Logger
		c.OnFatal = func(err error) {
			logger.Error("fatal worker error", "error", err)
			os.Exit(1)
		}
	}
}
