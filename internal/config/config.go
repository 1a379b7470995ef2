// Package config loads the error handler's runtime configuration.
//
// Connection settings come from environment variables and are validated
// fail-fast at startup. Timing and labelling tunables may optionally be
// overridden by a YAML file named by ERROR_HANDLER_CONFIG.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/podaac/generate-error-handler/internal/event"
)

// Config holds the handler's runtime configuration.
type Config struct {
	// RedisURL is the parameter store connection string (from REDIS_URL).
	RedisURL string

	// Topic is the substring matched against live channels to resolve the
	// alert topic (from TOPIC).
	Topic string

	// PollInterval is the sleep between lock polls.
	PollInterval time.Duration

	// LockTTL bounds how long a claimed lock can outlive its holder.
	LockTTL time.Duration

	// JitterMin and JitterMax bound the pre-reclamation backoff sleep.
	JitterMin time.Duration
	JitterMax time.Duration

	// Datasets maps dataset keys to display names for log lines.
	Datasets map[string]string

	// FallbackDatasetName labels datasets absent from the table.
	FallbackDatasetName string
}

// fileConfig is the YAML shape of the optional tunables file. Durations are
// strings in time.ParseDuration format ("3s", "5m").
type fileConfig struct {
	PollInterval        string            `yaml:"poll_interval,omitempty"`
	LockTTL             string            `yaml:"lock_ttl,omitempty"`
	JitterMin           string            `yaml:"jitter_min,omitempty"`
	JitterMax           string            `yaml:"jitter_max,omitempty"`
	Datasets            map[string]string `yaml:"datasets,omitempty"`
	FallbackDatasetName string            `yaml:"fallback_dataset_name,omitempty"`
}

// Load reads configuration from environment variables, applies the optional
// YAML overrides file, and validates the result. All errors are detected
// before any resources are allocated.
func Load() (*Config, error) {
	cfg := &Config{
		RedisURL:            os.Getenv("REDIS_URL"),
		Topic:               os.Getenv("TOPIC"),
		PollInterval:        3 * time.Second,
		LockTTL:             5 * time.Minute,
		JitterMin:           1 * time.Second,
		JitterMax:           10 * time.Second,
		Datasets:            event.DefaultDatasetNames,
		FallbackDatasetName: event.FallbackDatasetName,
	}

	if path := os.Getenv("ERROR_HANDLER_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFile merges overrides from a YAML tunables file into the config.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := overrideDuration(&c.PollInterval, fc.PollInterval, "poll_interval"); err != nil {
		return err
	}
	if err := overrideDuration(&c.LockTTL, fc.LockTTL, "lock_ttl"); err != nil {
		return err
	}
	if err := overrideDuration(&c.JitterMin, fc.JitterMin, "jitter_min"); err != nil {
		return err
	}
	if err := overrideDuration(&c.JitterMax, fc.JitterMax, "jitter_max"); err != nil {
		return err
	}
	if len(fc.Datasets) > 0 {
		merged := make(map[string]string, len(c.Datasets)+len(fc.Datasets))
		for k, v := range c.Datasets {
			merged[k] = v
		}
		for k, v := range fc.Datasets {
			merged[k] = v
		}
		c.Datasets = merged
	}
	if fc.FallbackDatasetName != "" {
		c.FallbackDatasetName = fc.FallbackDatasetName
	}
	return nil
}

// overrideDuration parses a duration override when present.
func overrideDuration(dst *time.Duration, raw, field string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	*dst = d
	return nil
}

// Validate checks that all required configuration is present and coherent.
// Returns the first validation error encountered.
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL environment variable is required")
	}
	if c.Topic == "" {
		return fmt.Errorf("TOPIC environment variable is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.JitterMax < c.JitterMin {
		return fmt.Errorf("jitter_max (%s) must not be less than jitter_min (%s)", c.JitterMax, c.JitterMin)
	}
	return nil
}

// DatasetDisplayName returns the display name for a dataset key, or the
// configured fallback label for unknown datasets.
func (c *Config) DatasetDisplayName(dataset string) string {
	if name, ok := c.Datasets[dataset]; ok {
		return name
	}
	return c.FallbackDatasetName
}
