// Package commands implements the langmirror CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/langmirror/internal/logger"
	"github.com/marmos91/langmirror/pkg/config"
)

// Build-time variables injected via ldflags
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "langmirror",
	Short: "Per-language media library mirroring for Jellyfin and Emby",
	Long: `langmirror keeps link-based mirror libraries per language alternative
and reconciles which libraries each media server user can see, based on
manual assignments, LDAP group mappings, or a configured default.

Configuration is read from --config, $XDG_CONFIG_HOME/langmirror/config.yaml,
or LANGMIRROR_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Path to config file (default: $XDG_CONFIG_HOME/langmirror/config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the CLI. Errors are printed once here; commands keep
// SilenceErrors so they are not printed twice.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}

// loadConfig loads and validates the configuration and initializes the
// logger from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, nil
}
