// Package config loads, validates, and materializes the langmirror
// daemon configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete langmirror configuration.
//
// This structure captures all configurable aspects of the daemon:
//   - Logging configuration
//   - Management API server settings
//   - Media server connection (URL, credentials, rate limiting)
//   - LDAP membership source
//   - State persistence backend selection and backend-specific options
//   - Reconciliation loop settings
//
// Configuration sources (in order of precedence):
//  1. Environment variables (LANGMIRROR_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
//
// Persistence Configuration Pattern:
// Each backend defines its own option map; only the section matching the
// selected type is decoded, via the factory in factories.go.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains management API server settings
	Server ServerConfig `mapstructure:"server"`

	// MediaServer describes the host media server connection
	MediaServer MediaServerConfig `mapstructure:"media_server"`

	// LDAP configures the group-membership source for automatic
	// assignment
	LDAP LDAPConfig `mapstructure:"ldap"`

	// State specifies the persistence backend for the desired-state
	// document
	State StateConfig `mapstructure:"state"`

	// Sync controls the reconciliation loop
	Sync SyncConfig `mapstructure:"sync"`

	// Metrics toggles Prometheus metrics collection
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains management API server settings.
type ServerConfig struct {
	// ListenAddress is the host:port the API server binds
	ListenAddress string `mapstructure:"listen_address" validate:"required"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// MediaServerConfig describes the host media server connection.
type MediaServerConfig struct {
	// URL is the media server's base URL (e.g. "http://localhost:8096")
	URL string `mapstructure:"url" validate:"required,url"`

	// APIKey is an admin API key for the management API
	APIKey string `mapstructure:"api_key" validate:"required"`

	// Timeout bounds each individual API request
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`

	// RateLimit is the sustained request rate against the server in
	// requests per second. Unset falls back to DefaultRateLimit.
	RateLimit uint `mapstructure:"rate_limit"`

	// RateBurst is the burst capacity of the limiter. Unset falls back
	// to DefaultRateBurst.
	RateBurst uint `mapstructure:"rate_burst"`

	// ForceVersion pins the server version instead of probing at startup
	// (e.g. "10.8"). Normally left empty.
	ForceVersion string `mapstructure:"force_version"`
}

// LDAPConfig configures the group-membership source.
type LDAPConfig struct {
	// Enabled turns LDAP-driven assignment on
	Enabled bool `mapstructure:"enabled"`

	// MembershipFile is the YAML export of user group memberships,
	// required when Enabled is true
	MembershipFile string `mapstructure:"membership_file"`
}

// StateConfig specifies state persistence configuration.
//
// The Type field determines which backend is used. Only the
// corresponding backend-specific section is decoded.
type StateConfig struct {
	// Type specifies which persistence backend to use
	// Valid values: file, badger, s3, memory
	Type string `mapstructure:"type" validate:"required,oneof=file badger s3 memory"`

	// File contains file-backend configuration
	// Only used when Type = "file"
	File map[string]any `mapstructure:"file"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3"`
}

// SyncConfig controls the reconciliation loop.
type SyncConfig struct {
	// Interval between scheduled reconciliation passes
	Interval time.Duration `mapstructure:"interval" validate:"required,gt=0"`

	// AutoAssign enables the default-alternative fallback for users with
	// no LDAP match; seeded into the state document at startup
	AutoAssign bool `mapstructure:"auto_assign"`

	// DefaultAlternative is the fallback alternative id; empty leaves
	// unmatched users unassigned
	DefaultAlternative string `mapstructure:"default_alternative"`
}

// MetricsConfig toggles Prometheus metrics collection.
type MetricsConfig struct {
	// Enabled initializes the metrics registry and exposes /metrics
	Enabled bool `mapstructure:"enabled"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (LANGMIRROR_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file
// settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the LANGMIRROR_ prefix and underscores
	// Example: LANGMIRROR_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("LANGMIRROR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "langmirror")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "langmirror")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// GetConfigDir returns the configuration directory path (exposed for the
// init command).
func GetConfigDir() string {
	return getConfigDir()
}
