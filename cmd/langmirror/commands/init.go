package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/marmos91/langmirror/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample configuration file",
	Long: `Write a commented sample configuration to the default config location
(or to the path given with --config). Refuses to overwrite an existing
file unless --force is set.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

const sampleConfig = `# langmirror configuration

logging:
  level: INFO        # DEBUG, INFO, WARN, ERROR
  format: json       # json or text
  output: stdout     # stdout, stderr, or a file path

server:
  listen_address: "127.0.0.1:9090"
  shutdown_timeout: 10s

media_server:
  url: "http://localhost:8096"
  api_key: "CHANGE_ME"
  # force_version: "10.9.0"   # skip the version probe

ldap:
  enabled: false
  # membership_file: /etc/langmirror/membership.yaml

state:
  type: file         # file, badger, s3, or memory
  # file:
  #   path: /var/lib/langmirror/state.json   # default: $XDG_DATA_HOME/langmirror/state.json
  # badger:
  #   path: /var/lib/langmirror/badger
  # s3:
  #   bucket: langmirror
  #   region: us-east-1
  #   key_prefix: state/

sync:
  interval: 15m
  auto_assign: true
  # default_alternative: pt-br

metrics:
  enabled: true
`

func runInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Wrote sample configuration to %s\n", path)
	return nil
}
