package xrootd

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/juztas/xrootd/internal/core/multistream"
	"github.com/juztas/xrootd/internal/core/stream"
)

// Config is the top-level configuration for a Session: how a single
// connection attempt behaves (stream.Config) plus how aggressively it tries
// to bond additional sub-streams (multistream.Config).
type Config struct {
	Stream      *stream.Config
	MultiStream *multistream.Config
	// ClientName is sent to the server during the handshake hello.
	ClientName string
}

// DefaultConfig returns the built-in defaults for both sub-configs.
func DefaultConfig() *Config {
	return &Config{
		Stream:      stream.DefaultConfig(),
		MultiStream: multistream.DefaultConfig(),
		ClientName:  "xrootd-go-client",
	}
}

// LoadConfigFromEnv reads both sub-configs from their respective XRD_*
// environment variables.
func LoadConfigFromEnv() *Config {
	cfg := DefaultConfig()
	cfg.Stream = stream.LoadConfigFromEnv()
	cfg.MultiStream = multistream.LoadConfigFromEnv()
	return cfg
}

// fileConfig mirrors Config's field names in the TOML file format, letting
// an operator check in a client configuration file instead of (or beneath)
// environment variables — the file loses to any XRD_* variable that is
// also set, matching LoadConfig's precedence.
type fileConfig struct {
	ClientName        string `toml:"client_name"`
	TimeoutResolution int    `toml:"timeout_resolution_seconds"`
	ConnectionWindow  int    `toml:"connection_window_seconds"`
	ConnectionRetry   int    `toml:"connection_retry"`
	StreamErrorWindow int    `toml:"stream_error_window_seconds"`
	MultiStreamCount  int    `toml:"multistream_count"`
	MultiStreamSplit  int    `toml:"multistream_split_size_bytes"`
}

// LoadConfigFromFile decodes a TOML configuration file into a Config
// seeded from DefaultConfig; fields absent from the file keep their
// default. Every field is optional.
func LoadConfigFromFile(path string) (*Config, error) {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return nil, fmt.Errorf("xrootd: reading config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if fc.ClientName != "" {
		cfg.ClientName = fc.ClientName
	}
	if fc.TimeoutResolution > 0 {
		cfg.Stream.TimeoutResolution = secondsToDuration(fc.TimeoutResolution)
	}
	if fc.ConnectionWindow > 0 {
		cfg.Stream.ConnectionWindow = secondsToDuration(fc.ConnectionWindow)
	}
	if fc.ConnectionRetry > 0 {
		cfg.Stream.ConnectionRetry = fc.ConnectionRetry
	}
	if fc.StreamErrorWindow > 0 {
		cfg.Stream.StreamErrorWindow = secondsToDuration(fc.StreamErrorWindow)
	}
	if fc.MultiStreamCount > 0 {
		cfg.MultiStream.MaxStreams = fc.MultiStreamCount
	}
	if fc.MultiStreamSplit > 0 {
		cfg.MultiStream.SplitSize = fc.MultiStreamSplit
	}
	return cfg, nil
}

// LoadConfig builds a Config layering, in increasing precedence: built-in
// defaults, an optional TOML file (skipped when path is empty), then
// XRD_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		fromFile, err := LoadConfigFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fromFile
	}
	stream.ApplyEnvOverrides(cfg.Stream)
	multistream.ApplyEnvOverrides(cfg.MultiStream)
	return cfg, nil
}

func secondsToDuration(n int) time.Duration { return time.Duration(n) * time.Second }

// Validate reports whether cfg is internally consistent.
func (c *Config) Validate() error {
	if err := c.Stream.Validate(); err != nil {
		return err
	}
	if c.ClientName == "" {
		return fmt.Errorf("xrootd: ClientName must not be empty")
	}
	return nil
}

// Option mutates a Session at construction time.
type Option func(*sessionOptions)

type sessionOptions struct {
	cfg        *Config
	metricsReg prometheus.Registerer
}

// WithConfig overrides the default Config used by NewSession.
func WithConfig(cfg *Config) Option {
	return func(o *sessionOptions) { o.cfg = cfg }
}

// WithMetrics registers a prometheus.Registerer that NewSession's Stream
// and PhysicalConnection report connection attempts, faults, and
// sub-stream counts to. Omitting it leaves metrics collection off.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *sessionOptions) { o.metricsReg = reg }
}
