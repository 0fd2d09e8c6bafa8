// Package config loads, validates and watches the mousewatch configuration.
//
// Files may be TOML, JSON or YAML, chosen by extension. Every document is
// checked against an embedded JSON Schema before it is decoded, then
// MOUSEWATCH_* environment variables are applied and the result is
// validated.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"mousewatch/internal/logging"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration. A loaded Config is treated
// as immutable; reloads produce a new value.
type Config struct {
	Version int `toml:"version" json:"version" yaml:"version"`

	Hook     HookConfig     `toml:"hook" json:"hook" yaml:"hook"`
	Dispatch DispatchConfig `toml:"dispatch" json:"dispatch" yaml:"dispatch"`
	Logging  LoggingConfig  `toml:"logging" json:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `toml:"metrics" json:"metrics" yaml:"metrics"`
}

// HookConfig controls the low-level mouse hook.
type HookConfig struct {
	// InstallMouse installs the mouse hook at startup. Changing it on a
	// running daemon installs or removes the hook.
	InstallMouse bool `toml:"install_mouse" json:"install_mouse" yaml:"install_mouse"`

	// StrictUninstall reports a failed hook removal on shutdown as an error
	// instead of logging it.
	StrictUninstall bool `toml:"strict_uninstall" json:"strict_uninstall" yaml:"strict_uninstall"`

	// Simulate replaces the OS hook with an in-memory hook chain.
	Simulate bool `toml:"simulate" json:"simulate" yaml:"simulate"`
}

// DispatchConfig controls hand-off of events from the hook thread.
type DispatchConfig struct {
	// QueueSize is the number of events buffered between the hook thread
	// and the consumer. Events beyond it are dropped.
	QueueSize int `toml:"queue_size" json:"queue_size" yaml:"queue_size"`

	// LogEvents logs every event at debug level.
	LogEvents bool `toml:"log_events" json:"log_events" yaml:"log_events"`
}

// LoggingConfig mirrors logging.Config in file form.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level" yaml:"level"`
	Format     string `toml:"format" json:"format" yaml:"format"`
	Output     string `toml:"output" json:"output" yaml:"output"`
	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" json:"compress" yaml:"compress"`
}

// MetricsConfig controls the metrics and health HTTP endpoint.
type MetricsConfig struct {
	Enabled    bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	ListenAddr string `toml:"listen_addr" json:"listen_addr" yaml:"listen_addr"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Hook: HookConfig{
			InstallMouse:    true,
			StrictUninstall: true,
		},
		Dispatch: DispatchConfig{
			QueueSize: 1024,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   logging.DefaultLogPath(),
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9464",
		},
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Validate checks the configuration for errors. It returns ValidationErrors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// LoggingOptions converts the logging section into logging.Config.
func (c *Config) LoggingOptions() (*logging.Config, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return nil, err
	}
	return &logging.Config{
		Level:      level,
		Format:     format,
		Output:     c.Logging.Output,
		FilePath:   c.Logging.FilePath,
		MaxSize:    int64(c.Logging.MaxSizeMB),
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
		Component:  "mousewatch",
	}, nil
}

// ApplyEnvOverrides applies MOUSEWATCH_* environment variables.
func (c *Config) ApplyEnvOverrides() error {
	var errs ValidationErrors

	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(name, field string, dst *bool) {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("%s: %q is not a boolean", name, v)})
			return
		}
		*dst = b
	}
	integer := func(name, field string, dst *int) {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("%s: %q is not an integer", name, v)})
			return
		}
		*dst = n
	}

	boolean("MOUSEWATCH_INSTALL_MOUSE", "hook.install_mouse", &c.Hook.InstallMouse)
	boolean("MOUSEWATCH_SIMULATE", "hook.simulate", &c.Hook.Simulate)
	integer("MOUSEWATCH_QUEUE_SIZE", "dispatch.queue_size", &c.Dispatch.QueueSize)
	boolean("MOUSEWATCH_LOG_EVENTS", "dispatch.log_events", &c.Dispatch.LogEvents)
	str("MOUSEWATCH_LOG_LEVEL", &c.Logging.Level)
	str("MOUSEWATCH_LOG_FORMAT", &c.Logging.Format)
	str("MOUSEWATCH_LOG_PATH", &c.Logging.FilePath)
	boolean("MOUSEWATCH_METRICS_ENABLED", "metrics.enabled", &c.Metrics.Enabled)
	str("MOUSEWATCH_METRICS_ADDR", &c.Metrics.ListenAddr)

	if len(errs) > 0 {
		return errs
	}
	return nil
}
