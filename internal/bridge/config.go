package bridge

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/useqlink/internal/console"
	"github.com/danmuck/useqlink/internal/protocol/ring"
	"github.com/danmuck/useqlink/internal/protocol/session"
	"github.com/danmuck/useqlink/internal/protocol/telemetry"
	"github.com/danmuck/useqlink/internal/transport"
	"github.com/danmuck/useqlink/internal/transport/serialport"
)

var (
	ErrInvalidCaptureTimeout = errors.New("bridge: invalid capture timeout")
	ErrMissingPort           = errors.New("bridge: serial port not set")
	ErrMissingTCPAddr        = errors.New("bridge: tcp address not set")
)

// Version is stamped at build time with -ldflags "-X".
var Version = "0.1.0-dev"

// ServiceConfig configures the bridge runtime.
type ServiceConfig struct {
	ID          string
	HTTPAddr    string
	CorsOrigins []string
	// APIToken, when set, is required as a bearer token on POST routes.
	APIToken string

	Transport transport.Kind
	Serial    serialport.Config
	TCPAddr   string
	Session   session.Config

	HistoryCapacity int
	Channels        int
	ConsoleLines    int

	// AutoConnect opens the device when the service starts.
	AutoConnect bool
	// Reconnect reopens after an unexpected disconnect using Session.Backoff.
	Reconnect      bool
	CaptureTimeout time.Duration
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ID:              "useq.local",
		HTTPAddr:        ":9040",
		CorsOrigins:     []string{"http://localhost:3000"},
		Transport:       transport.KindSerial,
		Serial:          serialport.DefaultConfig("/dev/ttyACM0"),
		TCPAddr:         "127.0.0.1:7777",
		Session:         session.DefaultConfig(),
		HistoryCapacity: ring.DefaultCapacity,
		Channels:        telemetry.DefaultChannels,
		ConsoleLines:    console.DefaultLines,
		AutoConnect:     true,
		Reconnect:       false,
		CaptureTimeout:  2 * time.Second,
	}
}

// withDefaults fills zero values the same way DefaultServiceConfig would.
func (c ServiceConfig) withDefaults() ServiceConfig {
	def := DefaultServiceConfig()
	if strings.TrimSpace(c.ID) == "" {
		c.ID = def.ID
	}
	if strings.TrimSpace(c.HTTPAddr) == "" {
		c.HTTPAddr = def.HTTPAddr
	}
	if c.Transport == "" {
		c.Transport = def.Transport
	}
	if c.Serial.Baud <= 0 {
		c.Serial.Baud = def.Serial.Baud
	}
	if c.Serial.ReadTimeout <= 0 {
		c.Serial.ReadTimeout = def.Serial.ReadTimeout
	}
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = def.HistoryCapacity
	}
	if c.Channels <= 0 {
		c.Channels = def.Channels
	}
	if c.ConsoleLines <= 0 {
		c.ConsoleLines = def.ConsoleLines
	}
	if c.CaptureTimeout == 0 {
		c.CaptureTimeout = def.CaptureTimeout
	}
	c.Session = c.Session.WithDefaults()
	return c
}

// Validate reports configuration that cannot produce a working bridge.
func (c ServiceConfig) Validate() error {
	if _, err := transport.ParseKind(string(c.Transport)); err != nil {
		return err
	}
	if c.CaptureTimeout < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidCaptureTimeout, c.CaptureTimeout)
	}
	switch c.Transport {
	case transport.KindTCP:
		if strings.TrimSpace(c.TCPAddr) == "" {
			return ErrMissingTCPAddr
		}
	default:
		if strings.TrimSpace(c.Serial.Name) == "" {
			return ErrMissingPort
		}
	}
	return nil
}

// BuildTransport resolves the configured device transport.
func BuildTransport(cfg ServiceConfig) (transport.Transport, error) {
	kind, err := transport.ParseKind(string(cfg.Transport))
	if err != nil {
		return nil, err
	}
	switch kind {
	case transport.KindTCP:
		if strings.TrimSpace(cfg.TCPAddr) == "" {
			return nil, ErrMissingTCPAddr
		}
		return transport.TCP{Addr: cfg.TCPAddr, DialTimeout: 5 * time.Second}, nil
	default:
		if strings.TrimSpace(cfg.Serial.Name) == "" {
			return nil, ErrMissingPort
		}
		return serialport.New(cfg.Serial), nil
	}
}
