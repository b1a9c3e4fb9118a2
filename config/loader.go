package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/c360/vehiclehub/errors"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "VEHICLEHUB"

// Load reads a JSON configuration file, applies environment variable
// overrides, and validates the result. An empty path yields the
// defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "read config file")
		}

		// Duration fields accept human-readable strings ("500ms").
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "parse config file")
		}
		parseDurations(raw)

		normalized, err := json.Marshal(raw)
		if err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "normalize config")
		}
		if err := json.Unmarshal(normalized, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "decode config")
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDurations converts duration strings to nanoseconds so the
// standard JSON decoder accepts them as time.Duration.
func parseDurations(raw map[string]any) {
	pipeline, ok := raw["pipeline"].(map[string]any)
	if !ok {
		return
	}
	if s, ok := pipeline["poll_interval"].(string); ok {
		if d, err := time.ParseDuration(s); err == nil {
			pipeline["poll_interval"] = d.Nanoseconds()
		}
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(EnvPrefix + "_SOURCE"); val != "" {
		cfg.Source.Default = val
	}
	if val := os.Getenv(EnvPrefix + "_SOURCE_RESOURCE"); val != "" {
		cfg.Source.Resource = val
	}
	if val := os.Getenv(EnvPrefix + "_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Metrics.Port = port
		}
	}
	if val := os.Getenv(EnvPrefix + "_RECORDING_DIR"); val != "" {
		cfg.Recording.Directory = val
	}
}
