package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/useqlink/internal/bridge"
	"github.com/danmuck/useqlink/internal/protocol/command"
	"github.com/danmuck/useqlink/internal/testutil/testlog"
	"github.com/danmuck/useqlink/internal/transport"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "useq.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestTemplateValidatesToDefaults(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "useq.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err := Validate(path)
	if err != nil {
		t.Fatalf("validate template: %v", err)
	}
	def := bridge.DefaultServiceConfig()
	if cfg.ID != def.ID || cfg.Serial != def.Serial || cfg.CaptureTimeout != def.CaptureTimeout {
		t.Fatalf("template drifted from defaults: %+v", cfg)
	}
	if cfg.Session.Backoff.InitialDelay != def.Session.Backoff.InitialDelay {
		t.Fatalf("backoff got=%v want=%v", cfg.Session.Backoff.InitialDelay, def.Session.Backoff.InitialDelay)
	}
	if cfg.Session.HandshakeCommand != def.Session.HandshakeCommand {
		t.Fatalf("handshake got=%q", cfg.Session.HandshakeCommand)
	}

	if err := WriteTemplate(path, false); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if err := WriteTemplate(path, true); err != nil {
		t.Fatalf("overwrite template: %v", err)
	}
}

func TestValidateAppliesOverrides(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, `
id = "studio"
transport = "tcp"
tcp_addr = "10.0.0.5:7777"
capture_mode = "queue"
reconnect = true
reconnect_initial = "100ms"
reconnect_attempts = 3
capture_timeout = "750ms"
handshake_command = ""
`)
	cfg, err := Validate(path)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.ID != "studio" || cfg.Transport != transport.KindTCP || cfg.TCPAddr != "10.0.0.5:7777" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Session.CaptureMode != command.CaptureQueue || !cfg.Reconnect {
		t.Fatalf("unexpected session config: %+v", cfg.Session)
	}
	if cfg.Session.Backoff.InitialDelay != 100*time.Millisecond || cfg.Session.Backoff.MaxAttempts != 3 {
		t.Fatalf("unexpected backoff: %+v", cfg.Session.Backoff)
	}
	if cfg.CaptureTimeout != 750*time.Millisecond {
		t.Fatalf("capture timeout got=%v", cfg.CaptureTimeout)
	}
	if cfg.Session.HandshakeCommand != "" {
		t.Fatalf("handshake should be disabled, got %q", cfg.Session.HandshakeCommand)
	}
	if cfg.Serial.Baud != 115200 {
		t.Fatalf("undefined key changed baud: %d", cfg.Serial.Baud)
	}
}

func TestValidateRejectsBadFiles(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"unknown key":   "speed = 9600\n",
		"bad duration":  "capture_timeout = \"soon\"\n",
		"bad transport": "transport = \"usb\"\n",
		"bad mode":      "capture_mode = \"stack\"\n",
		"missing port":  "port = \"\"\n",
		"syntax":        "id = \n",
	}
	for name, body := range cases {
		if _, err := Validate(writeFile(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := Validate(filepath.Join(t.TempDir(), "missing.toml")); err == nil || !strings.Contains(err.Error(), "config load failed") {
		t.Fatalf("missing file err=%v", err)
	}
}
