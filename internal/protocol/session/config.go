package session

import (
	"time"

	"github.com/danmuck/useqlink/internal/protocol/command"
	"github.com/danmuck/useqlink/internal/protocol/frame"
)

// DefaultHandshakeCommand asks the firmware to report its version.
const DefaultHandshakeCommand = "(useq-report-firmware-info)"

// BackoffConfig defines reconnect backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
	// MaxAttempts bounds consecutive failed reopen attempts; 0 is unbounded.
	MaxAttempts int
}

// Config defines per-session protocol settings.
type Config struct {
	ReadBufferSize   int
	HandshakeCommand string
	CaptureMode      command.CaptureMode
	Limits           frame.Limits
	Backoff          BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		ReadBufferSize:   1024,
		HandshakeCommand: DefaultHandshakeCommand,
		CaptureMode:      command.CaptureSingle,
		Limits:           frame.DefaultLimits(),
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig. An empty
// HandshakeCommand is kept: it disables the handshake.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = def.ReadBufferSize
	}
	if c.CaptureMode == "" {
		c.CaptureMode = def.CaptureMode
	}
	if c.Limits.MaxTextBytes < 0 {
		c.Limits.MaxTextBytes = def.Limits.MaxTextBytes
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff.InitialDelay = def.Backoff.InitialDelay
	}
	if c.Backoff.Multiplier < 1.0 {
		c.Backoff.Multiplier = def.Backoff.Multiplier
	}
	if c.Backoff.MaxDelay <= 0 {
		c.Backoff.MaxDelay = def.Backoff.MaxDelay
	}
	return c
}
