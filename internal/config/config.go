// Package config loads spoolwatch configuration with the precedence
// runtime overrides > environment (SPOOLWATCH_*) > config file > defaults.
package config

import (
	"time"
)

// Config is the resolved configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Provider ProviderConfig `mapstructure:"provider"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	History  HistoryConfig  `mapstructure:"history"`
	Registry RegistryConfig `mapstructure:"registry"`
	Archive  ArchiveConfig  `mapstructure:"archive"`

	// ConfigFile is the file that was read, if any.
	ConfigFile string `mapstructure:"-"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`

	// Profile is "structured" (JSON) or "console".
	Profile string `mapstructure:"profile"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ProviderConfig selects and tunes the spooler backend.
type ProviderConfig struct {
	// Kind is "fixture" or "cups".
	Kind string `mapstructure:"kind"`

	// Fixture is a YAML fixture file for the fixture provider. Empty starts
	// with no devices.
	Fixture string `mapstructure:"fixture"`

	// Simulate advances fixture jobs at this interval when positive.
	Simulate time.Duration `mapstructure:"simulate"`

	RateLimit float64    `mapstructure:"rate_limit"`
	Burst     int        `mapstructure:"burst"`
	CUPS      CUPSConfig `mapstructure:"cups"`
}

type CUPSConfig struct {
	BinDir string `mapstructure:"bin_dir"`
	Server string `mapstructure:"server"`
	User   string `mapstructure:"user"`
}

type MonitorConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	StopGrace       time.Duration `mapstructure:"stop_grace"`
	ReadErrorPolicy string        `mapstructure:"read_error_policy"`
	WatchDevice     bool          `mapstructure:"watch_device"`
}

type HistoryConfig struct {
	// Path is the SQLite database. Empty uses the app data dir.
	Path string `mapstructure:"path"`

	// Retention prunes older events on open when positive.
	Retention time.Duration `mapstructure:"retention"`
}

type RegistryConfig struct {
	// Path is the session registry directory. Empty uses the app data dir.
	Path string `mapstructure:"path"`
}

type ArchiveConfig struct {
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	Profile        string `mapstructure:"profile"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}
