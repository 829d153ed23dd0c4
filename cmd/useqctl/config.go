package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/useqlink/internal/bridge"
	"github.com/danmuck/useqlink/internal/config"
)

// loadServiceConfig overlays the keys present in path onto the bridge
// defaults. An empty path yields the defaults.
func loadServiceConfig(path string) (bridge.ServiceConfig, error) {
	cfg := bridge.DefaultServiceConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw config.File
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return bridge.ServiceConfig{}, fmt.Errorf("load useq config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return bridge.ServiceConfig{}, fmt.Errorf("load useq config: unknown key %q", undecoded[0].String())
	}
	if err := raw.Overlay(&cfg, func(key string) bool { return meta.IsDefined(key) }); err != nil {
		return bridge.ServiceConfig{}, fmt.Errorf("load useq config: %w", err)
	}
	return cfg, nil
}
