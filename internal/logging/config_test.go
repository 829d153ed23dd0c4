package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		" DEBUG ": zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"info":    zerolog.InfoLevel,
	}
	for raw, want := range cases {
		got, ok := ParseLevel(raw)
		if !ok || got != want {
			t.Fatalf("ParseLevel(%q) got=%v ok=%v want=%v", raw, got, ok, want)
		}
	}
	if _, ok := ParseLevel("loud"); ok {
		t.Fatalf("unknown level accepted")
	}
	if _, ok := ParseLevel(""); ok {
		t.Fatalf("empty level should not override")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		EnvLogLevel:     "error",
		EnvLogTimestamp: "false",
		EnvLogNoColor:   "1",
	}
	cfg := DefaultConfig(ProfileRuntime)
	ApplyEnvOverrides(&cfg, func(k string) string { return env[k] })
	if cfg.Level != zerolog.ErrorLevel || cfg.Timestamp || !cfg.NoColor {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	cfg = DefaultConfig(ProfileTest)
	ApplyEnvOverrides(&cfg, func(string) string { return "" })
	if cfg.Level != zerolog.DebugLevel || cfg.Timestamp {
		t.Fatalf("test profile changed without env: %+v", cfg)
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: zerolog.WarnLevel, NoColor: true, Out: &buf})
	logger.Info().Msg("quiet")
	logger.Warn().Str("port", "/dev/ttyACM0").Msg("loud")
	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Fatalf("info line written at warn level: %q", out)
	}
	if !strings.Contains(out, "loud") || !strings.Contains(out, "port=/dev/ttyACM0") {
		t.Fatalf("warn line missing: %q", out)
	}
}
