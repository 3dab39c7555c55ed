// File: control/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Configuration loading. Environment variables win over the JSON file so a
// deployment can override a checked-in config without editing it.

package control

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/sugawarayuuta/sonnet"

	"github.com/momentics/zerows/api"
)

// EnvPrefix namespaces the engine's environment variables, e.g.
// ZEROWS_MAX_FRAME_SIZE.
const EnvPrefix = "ZEROWS_"

// LoadEnv overlays ZEROWS_-prefixed environment variables onto cfg.
func LoadEnv(cfg *api.Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env config: %w", err)
	}
	return nil
}

// LoadFile reads a JSON config file into cfg. Missing file is not an error;
// the caller keeps its current values.
func LoadFile(path string, cfg *api.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := sonnet.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("decode config file: %w", err)
	}
	return nil
}

// Load resolves the effective config: defaults, then the optional JSON file,
// then the environment.
func Load(path string) (api.Config, error) {
	var cfg api.Config
	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := LoadEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg.WithDefaults(), nil
}
