package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/langmirror/internal/httpapi"
	"github.com/marmos91/langmirror/internal/logger"
	"github.com/marmos91/langmirror/pkg/access"
	"github.com/marmos91/langmirror/pkg/assign"
	"github.com/marmos91/langmirror/pkg/config"
	"github.com/marmos91/langmirror/pkg/daemon"
	"github.com/marmos91/langmirror/pkg/metrics"
	"github.com/marmos91/langmirror/pkg/mirror"
	"github.com/marmos91/langmirror/pkg/state"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the langmirror daemon",
	Long: `Run the reconciliation loop and the management API server.

The daemon periodically syncs mirror directories, resolves user language
assignments, and corrects library permissions on the media server. The
management API exposes status, manual triggers, and configuration of
alternatives, mirrors, and assignments.

Examples:
  # Run with default config location
  langmirror serve

  # Run with a custom config file
  langmirror serve --config /etc/langmirror/config.yaml

  # Override settings through the environment
  LANGMIRROR_LOGGING_LEVEL=DEBUG langmirror serve`,
	RunE: runServe,
}

// components bundles everything a running daemon needs.
type components struct {
	store      *state.Store
	daemon     *daemon.Daemon
	resolver   *assign.Resolver
	reconciler *access.Reconciler
}

// buildComponents wires the full pipeline from configuration: state
// store, media server client, directory service, and the three
// reconciliation stages.
func buildComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	persistence, err := config.CreateStatePersistence(ctx, &cfg.State)
	if err != nil {
		return nil, fmt.Errorf("failed to create state backend: %w", err)
	}

	store := state.NewStore(persistence)
	if err := store.Open(ctx); err != nil {
		_ = persistence.Close()
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	if err := seedSettings(ctx, store, cfg); err != nil {
		_ = store.Close()
		return nil, err
	}

	platform, err := config.CreateMediaServerClient(ctx, &cfg.MediaServer)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	dir, err := config.CreateDirectoryService(&cfg.LDAP)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	engine := mirror.NewEngine(store, platform)
	resolver := assign.NewResolver(store, platform, dir)
	reconciler := access.NewReconciler(store, platform)
	d := daemon.New(daemon.Config{Interval: cfg.Sync.Interval}, platform, engine, resolver, reconciler)

	return &components{
		store:      store,
		daemon:     d,
		resolver:   resolver,
		reconciler: reconciler,
	}, nil
}

// seedSettings pushes the config file's sync switches into the state
// document so a settings change in the file takes effect on restart.
// Settings changed later through the API stick until the next restart.
func seedSettings(ctx context.Context, store *state.Store, cfg *config.Config) error {
	next := state.SyncSettings{
		LdapEnabled:          cfg.LDAP.Enabled,
		AutoAssign:           cfg.Sync.AutoAssign,
		DefaultAlternativeID: cfg.Sync.DefaultAlternative,
	}

	_, err := store.UpdateIf(ctx, func(d *state.Document) bool {
		if d.Settings == next {
			return false
		}
		d.Settings = next
		return true
	})
	return err
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	ctx, cancel := context.WithCancel(context.Background())
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

	server := &http.Server{
		Addr:    cfg.Server.ListenAddress,
		Handler: httpapi.NewRouter(comps.store, comps.daemon, comps.resolver, comps.reconciler),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("management API listening", "address", cfg.Server.ListenAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	go func() {
		_ = comps.daemon.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("management API server failed", "error", err)
		cancel()
		return err
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("management API shutdown failed", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
