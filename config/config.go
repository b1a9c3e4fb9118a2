// Package config loads and validates the hub configuration from a
// JSON file with environment variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/c360/vehiclehub/errors"
	"github.com/c360/vehiclehub/notify"
)

// Config is the complete hub configuration.
type Config struct {
	Source    SourceConfig    `json:"source"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Metrics   MetricsConfig   `json:"metrics"`
	Recording RecordingConfig `json:"recording"`
}

// SourceConfig selects the default data source, activated when the
// first client binds.
type SourceConfig struct {
	// Default is the source identifier, e.g. "trace" or "websocket".
	Default string `json:"default"`

	// Resource is the source's resource locator: a trace file path or
	// a websocket endpoint.
	Resource string `json:"resource,omitempty"`
}

// PipelineConfig tunes the notification pipeline.
type PipelineConfig struct {
	// QueueCapacity bounds the pending-notification queue. Zero means
	// the built-in default.
	QueueCapacity int `json:"queue_capacity,omitempty"`

	// PollInterval bounds how long the notifier sleeps between queue
	// checks. Zero means the built-in default.
	PollInterval time.Duration `json:"poll_interval,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port,omitempty"`
	Path    string `json:"path,omitempty"`
}

// RecordingConfig controls the trace recorder sink.
type RecordingConfig struct {
	// Directory receives trace files when recording is enabled.
	Directory string `json:"directory,omitempty"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			Default:  "websocket",
			Resource: "ws://127.0.0.1:50001/stream",
		},
		Pipeline: PipelineConfig{
			QueueCapacity: notify.DefaultQueueCapacity,
			PollInterval:  notify.DefaultPollInterval,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Recording: RecordingConfig{
			Directory: "/tmp/vehiclehub/traces",
		},
	}
}

// Validate checks the configuration and normalizes the source
// identifier.
func (c *Config) Validate() error {
	if c.Source.Default == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "source.default is required")
	}
	c.Source.Default = strings.ToLower(c.Source.Default)

	if c.Pipeline.QueueCapacity < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"pipeline.queue_capacity cannot be negative")
	}
	if c.Pipeline.PollInterval < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"pipeline.poll_interval cannot be negative")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				fmt.Sprintf("metrics.port %d out of range", c.Metrics.Port))
		}
		if c.Metrics.Path != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				"metrics.path must start with /")
		}
	}

	if c.Recording.Directory == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"recording.directory is required")
	}

	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// SafeConfig provides thread-safe access to configuration.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a thread-safe config wrapper.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "SafeConfig", "Update", "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}
