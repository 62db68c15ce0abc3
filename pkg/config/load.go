package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from the given YAML file, applies environment
// variable overrides, validates the result, and returns it.
//
// If path is empty or the file does not exist, defaults are used (still
// subject to environment overrides and validation).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies GANYMEDE_* environment variable overrides.
// Only the settings commonly overridden in container deployments are
// exposed as environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GANYMEDE_LISTEN_ADDRESS"); v != "" {
		cfg.Server.ListenAddress = v
	}
	if v := os.Getenv("GANYMEDE_RULES_PATH"); v != "" {
		cfg.Policy.RulesPath = v
	}
	if v := os.Getenv("GANYMEDE_STATE_PATH"); v != "" {
		cfg.State.Path = v
	}
	if v := os.Getenv("GANYMEDE_STATE_BACKEND"); v != "" {
		cfg.State.Backend = v
	}
	if v := os.Getenv("GANYMEDE_STATE_DRIVER"); v != "" {
		cfg.State.Driver = StateDriver(v)
	}
	if v := os.Getenv("GANYMEDE_LOG_LEVEL"); v != "" {
		cfg.Telemetry.Logging.Level = v
	}
	if v := os.Getenv("GANYMEDE_LOG_FORMAT"); v != "" {
		cfg.Telemetry.Logging.Format = v
	}
	if v := os.Getenv("GANYMEDE_PROBE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Health.ProbeTimeout = d
		}
	}
}
