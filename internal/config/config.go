package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/useqlink/internal/bridge"
	"github.com/danmuck/useqlink/internal/protocol/command"
	"github.com/danmuck/useqlink/internal/transport"
	"github.com/pelletier/go-toml/v2"
)

var ErrExists = errors.New("config: file already exists")

// File is the on-disk bridge configuration. Durations are Go duration
// strings ("250ms", "5s").
type File struct {
	ID          string   `toml:"id"`
	HTTPAddr    string   `toml:"http_addr"`
	CorsOrigins []string `toml:"cors_origins"`
	APIToken    string   `toml:"api_token"`

	Transport string `toml:"transport"`
	Port      string `toml:"port"`
	Baud      int    `toml:"baud"`
	TCPAddr   string `toml:"tcp_addr"`

	ReadBuffer       int    `toml:"read_buffer"`
	HandshakeCommand string `toml:"handshake_command"`
	CaptureMode      string `toml:"capture_mode"`
	MaxTextBytes     int    `toml:"max_text_bytes"`

	HistoryCapacity int `toml:"history_capacity"`
	Channels        int `toml:"channels"`
	ConsoleLines    int `toml:"console_lines"`

	AutoConnect       bool   `toml:"auto_connect"`
	Reconnect         bool   `toml:"reconnect"`
	ReconnectInitial  string `toml:"reconnect_initial"`
	ReconnectMax      string `toml:"reconnect_max"`
	ReconnectAttempts int    `toml:"reconnect_attempts"`
	CaptureTimeout    string `toml:"capture_timeout"`
}

// Default mirrors bridge.DefaultServiceConfig.
func Default() File {
	cfg := bridge.DefaultServiceConfig()
	return File{
		ID:                cfg.ID,
		HTTPAddr:          cfg.HTTPAddr,
		CorsOrigins:       cfg.CorsOrigins,
		APIToken:          cfg.APIToken,
		Transport:         string(cfg.Transport),
		Port:              cfg.Serial.Name,
		Baud:              cfg.Serial.Baud,
		TCPAddr:           cfg.TCPAddr,
		ReadBuffer:        cfg.Session.ReadBufferSize,
		HandshakeCommand:  cfg.Session.HandshakeCommand,
		CaptureMode:       string(cfg.Session.CaptureMode),
		MaxTextBytes:      cfg.Session.Limits.MaxTextBytes,
		HistoryCapacity:   cfg.HistoryCapacity,
		Channels:          cfg.Channels,
		ConsoleLines:      cfg.ConsoleLines,
		AutoConnect:       cfg.AutoConnect,
		Reconnect:         cfg.Reconnect,
		ReconnectInitial:  cfg.Session.Backoff.InitialDelay.String(),
		ReconnectMax:      cfg.Session.Backoff.MaxDelay.String(),
		ReconnectAttempts: cfg.Session.Backoff.MaxAttempts,
		CaptureTimeout:    cfg.CaptureTimeout.String(),
	}
}

// Template renders the default configuration.
func Template() (string, error) {
	raw, err := toml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("config: render template: %w", err)
	}
	return string(raw), nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

// Overlay copies the keys reported by defined onto cfg.
func (f File) Overlay(cfg *bridge.ServiceConfig, defined func(key string) bool) error {
	if defined("id") {
		if id := strings.TrimSpace(f.ID); id != "" {
			cfg.ID = id
		}
	}
	if defined("http_addr") {
		cfg.HTTPAddr = strings.TrimSpace(f.HTTPAddr)
	}
	if defined("cors_origins") {
		cfg.CorsOrigins = normalizeList(f.CorsOrigins)
	}
	if defined("api_token") {
		cfg.APIToken = strings.TrimSpace(f.APIToken)
	}
	if defined("transport") {
		kind, err := transport.ParseKind(f.Transport)
		if err != nil {
			return err
		}
		cfg.Transport = kind
	}
	if defined("port") {
		cfg.Serial.Name = strings.TrimSpace(f.Port)
	}
	if defined("baud") {
		cfg.Serial.Baud = f.Baud
	}
	if defined("tcp_addr") {
		cfg.TCPAddr = strings.TrimSpace(f.TCPAddr)
	}
	if defined("read_buffer") {
		cfg.Session.ReadBufferSize = f.ReadBuffer
	}
	if defined("handshake_command") {
		cfg.Session.HandshakeCommand = strings.TrimSpace(f.HandshakeCommand)
	}
	if defined("capture_mode") {
		mode, err := command.ParseCaptureMode(f.CaptureMode)
		if err != nil {
			return err
		}
		cfg.Session.CaptureMode = mode
	}
	if defined("max_text_bytes") {
		cfg.Session.Limits.MaxTextBytes = f.MaxTextBytes
	}
	if defined("history_capacity") {
		cfg.HistoryCapacity = f.HistoryCapacity
	}
	if defined("channels") {
		cfg.Channels = f.Channels
	}
	if defined("console_lines") {
		cfg.ConsoleLines = f.ConsoleLines
	}
	if defined("auto_connect") {
		cfg.AutoConnect = f.AutoConnect
	}
	if defined("reconnect") {
		cfg.Reconnect = f.Reconnect
	}
	if defined("reconnect_attempts") {
		cfg.Session.Backoff.MaxAttempts = f.ReconnectAttempts
	}
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"reconnect_initial", f.ReconnectInitial, &cfg.Session.Backoff.InitialDelay},
		{"reconnect_max", f.ReconnectMax, &cfg.Session.Backoff.MaxDelay},
		{"capture_timeout", f.CaptureTimeout, &cfg.CaptureTimeout},
	}
	for _, d := range durations {
		if !defined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}
	return nil
}

// Validate strictly decodes path, rejecting unknown keys, and checks the
// resulting bridge configuration.
func Validate(path string) (bridge.ServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return bridge.ServiceConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	var f File
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return bridge.ServiceConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	var keys map[string]any
	if err := toml.Unmarshal(data, &keys); err != nil {
		return bridge.ServiceConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}

	cfg := bridge.DefaultServiceConfig()
	err = f.Overlay(&cfg, func(key string) bool {
		_, ok := keys[key]
		return ok
	})
	if err != nil {
		return bridge.ServiceConfig{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return bridge.ServiceConfig{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
