package config

import (
	"time"

	"github.com/vietddude/menuguard/internal/core/logging"
	"github.com/vietddude/menuguard/internal/focus"
	"github.com/vietddude/menuguard/internal/recovery"
	"github.com/vietddude/menuguard/internal/resource"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Resources ResourcesConfig `yaml:"resources"`
	Focus     FocusConfig     `yaml:"focus"`
	Errors    ErrorsConfig    `yaml:"errors"`
}

// ServerConfig holds diagnostics HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`  // debug, info, warn, error
	Format      string `yaml:"format"` // json, text
	HistorySize int    `yaml:"history_size"`
}

// ResourcesConfig holds lifecycle manager and memory pressure settings.
type ResourcesConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	MonitorInterval time.Duration `yaml:"monitor_interval"`
	CriticalMB      float64       `yaml:"critical_mb"`
	HighMB          float64       `yaml:"high_mb"`
	ModerateMB      float64       `yaml:"moderate_mb"`
	LowMemoryMB     float64       `yaml:"low_memory_mb"` // host low-memory flag threshold
	IdleAfter       time.Duration `yaml:"idle_after"`
}

// FocusConfig holds focus arbitration settings.
type FocusConfig struct {
	TransitionTimeout   time.Duration `yaml:"transition_timeout"`
	ConflictCooldown    time.Duration `yaml:"conflict_cooldown"`
	MaxRecoveryAttempts int           `yaml:"max_recovery_attempts"`
	AttemptReset        time.Duration `yaml:"attempt_reset"`
	HistorySize         int           `yaml:"history_size"`
}

// ErrorsConfig holds error engine settings.
type ErrorsConfig struct {
	HistorySize int           `yaml:"history_size"`
	StatsWindow time.Duration `yaml:"stats_window"`
	TopKinds    int           `yaml:"top_kinds"`
}

// Default returns a configuration with every default applied.
func Default() *AppConfig {
	cfg := &AppConfig{}
	cfg.applyDefaults()
	return cfg
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.HistorySize == 0 {
		c.Logging.HistorySize = 200
	}

	rd := resource.DefaultConfig()
	if c.Resources.PollInterval == 0 {
		c.Resources.PollInterval = rd.PollInterval
	}
	if c.Resources.MonitorInterval == 0 {
		c.Resources.MonitorInterval = 10 * time.Second
	}
	if c.Resources.CriticalMB == 0 {
		c.Resources.CriticalMB = rd.CriticalMB
	}
	if c.Resources.HighMB == 0 {
		c.Resources.HighMB = rd.HighMB
	}
	if c.Resources.ModerateMB == 0 {
		c.Resources.ModerateMB = rd.ModerateMB
	}
	if c.Resources.LowMemoryMB == 0 {
		c.Resources.LowMemoryMB = rd.HighMB
	}
	if c.Resources.IdleAfter == 0 {
		c.Resources.IdleAfter = rd.IdleAfter
	}

	fd := focus.DefaultConfig()
	if c.Focus.TransitionTimeout == 0 {
		c.Focus.TransitionTimeout = fd.TransitionTimeout
	}
	if c.Focus.ConflictCooldown == 0 {
		c.Focus.ConflictCooldown = fd.ConflictCooldown
	}
	if c.Focus.MaxRecoveryAttempts == 0 {
		c.Focus.MaxRecoveryAttempts = fd.MaxRecoveryAttempts
	}
	if c.Focus.AttemptReset == 0 {
		c.Focus.AttemptReset = fd.AttemptReset
	}
	if c.Focus.HistorySize == 0 {
		c.Focus.HistorySize = fd.HistorySize
	}

	ed := recovery.DefaultConfig()
	if c.Errors.HistorySize == 0 {
		c.Errors.HistorySize = ed.HistorySize
	}
	if c.Errors.StatsWindow == 0 {
		c.Errors.StatsWindow = ed.StatsWindow
	}
	if c.Errors.TopKinds == 0 {
		c.Errors.TopKinds = ed.TopKinds
	}
}

// LoggerConfig converts the logging section.
func (c *AppConfig) LoggerConfig() logging.Config {
	return logging.Config{
		Debug:       c.Logging.Level == "debug",
		HistorySize: c.Logging.HistorySize,
		NoColor:     c.Logging.Format == "json",
	}
}

// ResourceConfig converts the resources section.
func (c *AppConfig) ResourceConfig() resource.Config {
	return resource.Config{
		PollInterval: c.Resources.PollInterval,
		CriticalMB:   c.Resources.CriticalMB,
		HighMB:       c.Resources.HighMB,
		ModerateMB:   c.Resources.ModerateMB,
		IdleAfter:    c.Resources.IdleAfter,
	}
}

// FocusConfig converts the focus section.
func (c *AppConfig) FocusConfig() focus.Config {
	return focus.Config{
		TransitionTimeout:   c.Focus.TransitionTimeout,
		ConflictCooldown:    c.Focus.ConflictCooldown,
		MaxRecoveryAttempts: c.Focus.MaxRecoveryAttempts,
		AttemptReset:        c.Focus.AttemptReset,
		HistorySize:         c.Focus.HistorySize,
	}
}

// RecoveryConfig converts the errors section.
func (c *AppConfig) RecoveryConfig() recovery.Config {
	return recovery.Config{
		HistorySize: c.Errors.HistorySize,
		StatsWindow: c.Errors.StatsWindow,
		TopKinds:    c.Errors.TopKinds,
	}
}
