package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default values applied to missing configuration fields.
const (
	DefaultLogLevel        = "INFO"
	DefaultLogFormat       = "text"
	DefaultLogOutput       = "stdout"
	DefaultListenAddress   = "127.0.0.1:9090"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultRequestTimeout  = 30 * time.Second
	DefaultRateLimit       = 10
	DefaultRateBurst       = 20
	DefaultStateType       = "file"
	DefaultSyncInterval    = 15 * time.Minute
)

// ApplyDefaults fills in default values for any unset configuration
// fields. Explicitly set values are never overwritten.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	// Normalize log level to uppercase for consistency
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = DefaultLogOutput
	}

	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if cfg.MediaServer.Timeout == 0 {
		cfg.MediaServer.Timeout = DefaultRequestTimeout
	}
	if cfg.MediaServer.RateLimit == 0 {
		cfg.MediaServer.RateLimit = DefaultRateLimit
	}
	if cfg.MediaServer.RateBurst == 0 {
		cfg.MediaServer.RateBurst = DefaultRateBurst
	}

	if cfg.State.Type == "" {
		cfg.State.Type = DefaultStateType
	}
	if cfg.State.Type == "file" {
		if cfg.State.File == nil {
			cfg.State.File = map[string]any{}
		}
		if _, ok := cfg.State.File["path"]; !ok {
			cfg.State.File["path"] = filepath.Join(getDataDir(), "state.json")
		}
	}

	if cfg.Sync.Interval == 0 {
		cfg.Sync.Interval = DefaultSyncInterval
	}
}

// getDataDir returns the data directory for durable daemon state.
//
// Uses XDG_DATA_HOME if set, otherwise ~/.local/share, or falls back to
// the current directory.
func getDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "langmirror")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".local", "share", "langmirror")
}
