package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/armish/fireplace/pkg/retry"
	"github.com/armish/fireplace/pkg/transport"
)

// ErrInvalid indicates a configuration that cannot be used.
var ErrInvalid = errors.New("invalid configuration")

// Default server parameters.
const (
	DefaultSyncRecvTimeout  = 300 * time.Millisecond
	DefaultSyncSendTimeout  = 300 * time.Millisecond
	DefaultAsyncSendTimeout = 300 * time.Millisecond
	DefaultAsyncWaitTimeout = 300 * time.Millisecond
	DefaultThreshold        = 100
	DefaultMaxTimeouts      = 4
)

// Config is the fireplace server configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Module    Selection `yaml:"module"`
	Unit      Selection `yaml:"unit"`
	Log       Log       `yaml:"log"`
	Metrics   Metrics   `yaml:"metrics"`
	Discovery Discovery `yaml:"discovery"`

	// Backoff paces a unit's production loop after errors.
	Backoff retry.Config `yaml:"backoff"`
}

// Server configures the network workers.
type Server struct {
	// IEndpoint is the inbound endpoint served by the sync worker.
	IEndpoint string `yaml:"iendpoint"`

	// OEndpoint is the outbound endpoint served by the async worker.
	OEndpoint string `yaml:"oendpoint"`

	SyncRecvTimeout  time.Duration `yaml:"sync_recv_timeout"`
	SyncSendTimeout  time.Duration `yaml:"sync_send_timeout"`
	AsyncSendTimeout time.Duration `yaml:"async_send_timeout"`
	AsyncWaitTimeout time.Duration `yaml:"async_wait_timeout"`

	// Threshold is the number of queued items that releases a batch.
	Threshold int `yaml:"threshold"`

	// MaxTimeouts is the number of consecutive threshold timeouts before
	// the queue is flushed anyway.
	MaxTimeouts int `yaml:"max_timeouts"`

	// MaxMessageSize limits inbound requests in bytes (0: transport default).
	MaxMessageSize uint32 `yaml:"max_message_size"`
}

// Selection names a module or unit and its parameter string.
type Selection struct {
	Name   string `yaml:"name"`
	Params string `yaml:"params"`
}

// Log configures logging.
type Log struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`

	// Protocol is a file path for CBOR protocol capture (optional).
	Protocol string `yaml:"protocol"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	// Addr is the listen address for /metrics, empty to disable.
	Addr string `yaml:"addr"`
}

// Discovery configures mDNS advertisement.
type Discovery struct {
	Advertise bool   `yaml:"advertise"`
	Instance  string `yaml:"instance"`
	Port      int    `yaml:"port"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Server: Server{
			SyncRecvTimeout:  DefaultSyncRecvTimeout,
			SyncSendTimeout:  DefaultSyncSendTimeout,
			AsyncSendTimeout: DefaultAsyncSendTimeout,
			AsyncWaitTimeout: DefaultAsyncWaitTimeout,
			Threshold:        DefaultThreshold,
			MaxTimeouts:      DefaultMaxTimeouts,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := decodeInto(&cfg, data); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func decodeInto(cfg *Config, data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Validate checks that the configuration can start a server.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Module.Name == "" {
		fail("module name is required")
	}
	if c.Unit.Name == "" {
		fail("unit name is required")
	}
	if c.Server.IEndpoint == "" && c.Server.OEndpoint == "" {
		fail("at least one endpoint is required")
	}
	endpoints := []struct {
		field string
		value string
	}{
		{"iendpoint", c.Server.IEndpoint},
		{"oendpoint", c.Server.OEndpoint},
	}
	for _, ep := range endpoints {
		if ep.value == "" {
			continue
		}
		if _, _, err := transport.ParseEndpoint(ep.value); err != nil {
			fail("%s: %v", ep.field, err)
		}
	}

	s := c.Server
	timeouts := []struct {
		field string
		value time.Duration
	}{
		{"sync_recv_timeout", s.SyncRecvTimeout},
		{"sync_send_timeout", s.SyncSendTimeout},
		{"async_send_timeout", s.AsyncSendTimeout},
		{"async_wait_timeout", s.AsyncWaitTimeout},
	}
	for _, to := range timeouts {
		if to.value <= 0 {
			fail("%s must be positive, got %s", to.field, to.value)
		}
	}
	if s.Threshold < 1 {
		fail("threshold must be at least 1, got %d", s.Threshold)
	}
	if s.MaxTimeouts < 1 {
		fail("max_timeouts must be at least 1, got %d", s.MaxTimeouts)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		fail("log level: %v", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		fail("log format %q (want text or json)", c.Log.Format)
	}

	if c.Discovery.Port < 0 || c.Discovery.Port > 65535 {
		fail("discovery port %d out of range", c.Discovery.Port)
	}

	return errors.Join(errs...)
}

// ParseLevel parses a slog level name.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return level, nil
}

// NewLogger builds the operational logger described by l.
func (l Log) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
