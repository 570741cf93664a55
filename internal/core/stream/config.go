package stream

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/juztas/xrootd/internal/core/metrics"
)

// Config holds the tunables that govern a Stream's timing and retry
// behavior. All of them can be overridden through environment variables,
// mirroring how the original client lets an operator tune connection
// handling without a recompile.
type Config struct {
	// TimeoutResolution is how often Tick should logically be invoked;
	// it also bounds the granularity of poller read/write timeouts.
	TimeoutResolution time.Duration
	// ConnectionWindow is how long an async connect attempt is given to
	// complete (including the transport handshake) before it is treated
	// as failed.
	ConnectionWindow time.Duration
	// ConnectionRetry is how many consecutive failed connection attempts
	// are tolerated before the stream gives up and enters the terminal
	// Error state.
	ConnectionRetry int
	// StreamErrorWindow is how long after entering the Error state the
	// stream still reports itself as unusable to CheckConnection, instead
	// of immediately trying to reconnect.
	StreamErrorWindow time.Duration
}

const (
	envTimeoutResolution = "XRD_TIMEOUTRESOLUTION"
	envConnectionWindow  = "XRD_CONNECTIONWINDOW"
	envConnectionRetry   = "XRD_CONNECTIONRETRY"
	envStreamErrorWindow = "XRD_STREAMERRORWINDOW"
)

// DefaultConfig returns the built-in defaults, used when no environment
// override is present.
func DefaultConfig() *Config {
	return &Config{
		TimeoutResolution: 15 * time.Second,
		ConnectionWindow:  30 * time.Second,
		ConnectionRetry:   3,
		StreamErrorWindow: 60 * time.Second,
	}
}

// LoadConfigFromEnv starts from DefaultConfig and applies any of the
// XRD_* environment overrides that are present and well-formed; malformed
// values are ignored and the default is kept.
func LoadConfigFromEnv() *Config {
	cfg := DefaultConfig()
	ApplyEnvOverrides(cfg)
	return cfg
}

// ApplyEnvOverrides mutates cfg in place, applying any of the XRD_*
// environment overrides that are present and well-formed on top of
// whatever cfg already holds — letting a caller layer environment
// variables on top of a config file rather than only on top of defaults.
func ApplyEnvOverrides(cfg *Config) {
	if v := getEnvSeconds(envTimeoutResolution); v > 0 {
		cfg.TimeoutResolution = v
	}
	if v := getEnvSeconds(envConnectionWindow); v > 0 {
		cfg.ConnectionWindow = v
	}
	if v := getEnvInt(envConnectionRetry); v > 0 {
		cfg.ConnectionRetry = v
	}
	if v := getEnvSeconds(envStreamErrorWindow); v > 0 {
		cfg.StreamErrorWindow = v
	}
}

func getEnvInt(name string) int {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func getEnvSeconds(name string) time.Duration {
	n := getEnvInt(name)
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

// Validate reports whether cfg's values are usable.
func (c *Config) Validate() error {
	if c.TimeoutResolution <= 0 {
		return fmt.Errorf("stream: TimeoutResolution must be positive")
	}
	if c.ConnectionWindow <= 0 {
		return fmt.Errorf("stream: ConnectionWindow must be positive")
	}
	if c.ConnectionRetry < 0 {
		return fmt.Errorf("stream: ConnectionRetry must not be negative")
	}
	if c.StreamErrorWindow < 0 {
		return fmt.Errorf("stream: StreamErrorWindow must not be negative")
	}
	return nil
}

// Option mutates a Stream at construction time.
type Option func(*Stream)

// WithConfig overrides the default Config.
func WithConfig(cfg *Config) Option {
	return func(s *Stream) { s.cfg = cfg }
}

// WithIncomingQueue shares an existing IncomingQueue instead of allocating a
// fresh one, used when constructing a sub-stream that must defer to stream
// 0's response queue.
func WithIncomingQueue(q *IncomingQueue) Option {
	return func(s *Stream) { s.incoming0 = q }
}

// WithMetrics installs a Registry the Stream reports connection attempts
// and faults to. Omitting it leaves the Stream's metrics field nil, which
// every Registry method tolerates.
func WithMetrics(reg *metrics.Registry) Option {
	return func(s *Stream) { s.metrics = reg }
}
