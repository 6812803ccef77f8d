package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/langmirror/internal/logger"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a single reconciliation pass and exit",
	Long: `Run one full reconciliation pass: force a mirror sync, resolve every
user's language assignment, and reconcile library permissions. The pass
report is printed as JSON on stdout.

Exits non-zero when the pass collected any errors, so it can be used
from cron or a systemd timer with failure alerting.`,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	comps, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := comps.store.Close(); err != nil {
			logger.Error("failed to close state store", "error", err)
		}
	}()

	report, passErr := comps.daemon.RunPass(ctx)

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("failed to encode pass report: %w", err)
	}

	if passErr != nil {
		return passErr
	}
	if len(report.Errors) > 0 {
		return fmt.Errorf("pass completed with %d errors", len(report.Errors))
	}
	return nil
}
