package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// ErrInvalidThresholds is returned when the pressure thresholds are not
// strictly increasing from critical to moderate.
var ErrInvalidThresholds = errors.New("memory thresholds must satisfy critical < high < moderate")

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, expanding environment variables first.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that defaults cannot repair.
func (c *AppConfig) Validate() error {
	r := c.Resources
	if !(r.CriticalMB < r.HighMB && r.HighMB < r.ModerateMB) {
		return fmt.Errorf("%w: got %.0f/%.0f/%.0f", ErrInvalidThresholds, r.CriticalMB, r.HighMB, r.ModerateMB)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	if c.Focus.MaxRecoveryAttempts < 1 {
		return fmt.Errorf("focus.max_recovery_attempts must be positive, got %d", c.Focus.MaxRecoveryAttempts)
	}
	return nil
}
