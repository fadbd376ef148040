// Package config provides unified configuration loading for dtsm.
// It supports loading the application config from YAML files and environment
// variables, and run specs from YAML, JSON or gcfg INI files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/dtsm/internal/constants"
)

// DTSMConfig contains all dtsm configuration settings.
type DTSMConfig struct {
	// Logging contains settings for operational logging and run traces.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Simulation contains runtime settings for the stepping loop.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Store selects where runs are persisted.
	Store StoreConfig `json:"store" yaml:"store"`

	// Backup contains settings for run store backups.
	Backup BackupConfig `json:"backup" yaml:"backup"`
}

// LoggingConfig configures dtsm's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables run traces in <store>/trace.jsonl.
	// "trace" additionally logs step progress.
	Level string `json:"level" yaml:"level"`
}

// SimulationConfig configures the stepping loop.
type SimulationConfig struct {
	// Workers is the number of goroutines per lattice step.
	Workers int `json:"workers" yaml:"workers"`

	// ProgressEvery is the step interval between progress events.
	// Negative disables progress events.
	ProgressEvery int `json:"progress_every" yaml:"progress_every"`

	// MaxCells caps the lattice size M*N of a single run. Zero uses the
	// built-in limit.
	MaxCells int `json:"max_cells" yaml:"max_cells"`
}

// StoreConfig configures run persistence.
type StoreConfig struct {
	// Dir overrides the store directory. Empty uses .dtsm under the project
	// root (or ~/.dtsm with --global).
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// BackupConfig configures backups of the run store.
type BackupConfig struct {
	// Compression writes V2 gzip backups when true, V1 plain JSON otherwise.
	Compression bool `json:"compression" yaml:"compression"`

	// Retention decides which old backups are deleted after a new one.
	Retention RetentionConfig `json:"retention" yaml:"retention"`
}

// RetentionConfig is the union of count, age and size limits.
type RetentionConfig struct {
	MaxCount     int    `json:"max_count" yaml:"max_count"`
	MaxAge       string `json:"max_age,omitempty" yaml:"max_age,omitempty"`               // e.g. "30d", "2w", "720h"
	MaxTotalSize string `json:"max_total_size,omitempty" yaml:"max_total_size,omitempty"` // e.g. "100MB"
}

// Default returns a DTSMConfig with sensible defaults.
func Default() *DTSMConfig {
	return &DTSMConfig{
		Logging: LoggingConfig{
			Level: "info",
		},
		Simulation: SimulationConfig{
			Workers:       constants.DefaultWorkers,
			ProgressEvery: constants.DefaultProgressEvery,
			MaxCells:      constants.MaxLatticeCells,
		},
		Backup: BackupConfig{
			Compression: true,
			Retention: RetentionConfig{
				MaxCount: constants.MaxBackupRotation,
			},
		},
	}
}

// DefaultPath returns ~/.dtsm/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".dtsm", "config.yaml"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.dtsm/config.yaml -> environment variables
func Load() (*DTSMConfig, error) {
	config := Default()

	// Try to load from default config file
	if configPath, err := DefaultPath(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	// Apply environment variable overrides
	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*DTSMConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Store.Dir = expandEnvVars(config.Store.Dir)

	return config, nil
}

// Save writes the configuration as YAML, creating the directory if needed.
func (c *DTSMConfig) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *DTSMConfig) Validate() error {
	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	if c.Simulation.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Simulation.Workers)
	}

	if c.Simulation.MaxCells < 0 {
		return fmt.Errorf("max_cells must be non-negative, got %d", c.Simulation.MaxCells)
	}

	if c.Backup.Retention.MaxCount < 0 {
		return fmt.Errorf("max_count must be non-negative, got %d", c.Backup.Retention.MaxCount)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *DTSMConfig) {
	if v := os.Getenv("DTSM_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("DTSM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Workers = n
		}
	}

	if v := os.Getenv("DTSM_STORE_DIR"); v != "" {
		config.Store.Dir = v
	}

	if v := os.Getenv("DTSM_BACKUP_COMPRESSION"); v != "" {
		config.Backup.Compression = v == "true" || v == "1"
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}

// keyAccessor reads and writes one dotted config key.
type keyAccessor struct {
	get func(c *DTSMConfig) any
	set func(c *DTSMConfig, v string) error
}

var keys = map[string]keyAccessor{
	"logging.level": {
		get: func(c *DTSMConfig) any { return c.Logging.Level },
		set: func(c *DTSMConfig, v string) error { c.Logging.Level = v; return nil },
	},
	"simulation.workers": {
		get: func(c *DTSMConfig) any { return c.Simulation.Workers },
		set: func(c *DTSMConfig, v string) error { return setInt(&c.Simulation.Workers, v) },
	},
	"simulation.progress_every": {
		get: func(c *DTSMConfig) any { return c.Simulation.ProgressEvery },
		set: func(c *DTSMConfig, v string) error { return setInt(&c.Simulation.ProgressEvery, v) },
	},
	"simulation.max_cells": {
		get: func(c *DTSMConfig) any { return c.Simulation.MaxCells },
		set: func(c *DTSMConfig, v string) error { return setInt(&c.Simulation.MaxCells, v) },
	},
	"store.dir": {
		get: func(c *DTSMConfig) any { return c.Store.Dir },
		set: func(c *DTSMConfig, v string) error { c.Store.Dir = v; return nil },
	},
	"backup.compression": {
		get: func(c *DTSMConfig) any { return c.Backup.Compression },
		set: func(c *DTSMConfig, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid boolean %q", v)
			}
			c.Backup.Compression = b
			return nil
		},
	},
	"backup.retention.max_count": {
		get: func(c *DTSMConfig) any { return c.Backup.Retention.MaxCount },
		set: func(c *DTSMConfig, v string) error { return setInt(&c.Backup.Retention.MaxCount, v) },
	},
	"backup.retention.max_age": {
		get: func(c *DTSMConfig) any { return c.Backup.Retention.MaxAge },
		set: func(c *DTSMConfig, v string) error { c.Backup.Retention.MaxAge = v; return nil },
	},
	"backup.retention.max_total_size": {
		get: func(c *DTSMConfig) any { return c.Backup.Retention.MaxTotalSize },
		set: func(c *DTSMConfig, v string) error { c.Backup.Retention.MaxTotalSize = v; return nil },
	},
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid integer %q", v)
	}
	*dst = n
	return nil
}

// Keys returns the settable dotted keys, sorted.
func Keys() []string {
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Get returns the value of a dotted key such as "simulation.workers".
func (c *DTSMConfig) Get(key string) (any, error) {
	acc, ok := keys[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s (valid: %s)", key, strings.Join(Keys(), ", "))
	}
	return acc.get(c), nil
}

// Set parses value into a dotted key and validates the result. On error c
// is left unchanged.
func (c *DTSMConfig) Set(key, value string) error {
	acc, ok := keys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %s (valid: %s)", key, strings.Join(Keys(), ", "))
	}
	next := *c
	if err := acc.set(&next, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}
