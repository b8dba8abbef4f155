package session

import (
	"time"

	"github.com/danmuck/ratlink/internal/protocol"
	"github.com/danmuck/ratlink/internal/transport"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines link and codec defaults for one robot session.
type Config struct {
	ConnectTimeout      time.Duration
	WriteTimeout        time.Duration
	MonitorInterval     time.Duration
	InactivityThreshold time.Duration
	// MaxDecodeFailures closes the channel after this many consecutive undecodable
	// frames. Zero never closes.
	MaxDecodeFailures int
	Trailing          protocol.TrailingPolicy
	Backoff           BackoffConfig
	// MaxAttempts bounds consecutive failed dials in a Redialer. Zero is unlimited.
	MaxAttempts int
}

// DefaultConfig returns the defaults used by ratctl when no config file is given.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:      5 * time.Second,
		WriteTimeout:        5 * time.Second,
		MonitorInterval:     time.Second,
		InactivityThreshold: time.Second,
		MaxDecodeFailures:   0,
		Trailing:            protocol.TrailingIgnore,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero durations from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = d.MonitorInterval
	}
	if c.InactivityThreshold <= 0 {
		c.InactivityThreshold = d.InactivityThreshold
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = d.Backoff
	}
	return c
}

// Monitor returns the inactivity monitor settings for transports.
func (c Config) Monitor() transport.MonitorConfig {
	return transport.MonitorConfig{Interval: c.MonitorInterval, Threshold: c.InactivityThreshold}
}
