// Package daemon drives the periodic reconciliation loop and the
// user-lifecycle event hooks.
//
// Each pass runs in a fixed order: mirror sync first, then assignment
// resolution, then access reconciliation. Access computation therefore
// never reads a mirror topology more stale than one pass. User
// create/delete events run the per-user slice of the same pipeline and
// may overlap a scheduled pass; all shared state goes through the store.
package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/langmirror/internal/logger"
	"github.com/marmos91/langmirror/pkg/access"
	"github.com/marmos91/langmirror/pkg/assign"
	"github.com/marmos91/langmirror/pkg/mediaserver"
	"github.com/marmos91/langmirror/pkg/metrics"
	"github.com/marmos91/langmirror/pkg/mirror"
)

// Config contains configuration for the reconciliation loop.
type Config struct {
	// Interval between scheduled passes
	Interval time.Duration
}

// PassReport summarizes one full reconciliation pass.
type PassReport struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Mirror *mirror.Report `json:"mirror,omitempty"`

	// UsersResolved counts users whose assignment was (re)computed
	UsersResolved int `json:"users_resolved"`

	// UsersReconciled counts users whose access was checked
	UsersReconciled int `json:"users_reconciled"`

	// Errors carries the per-entity failure messages of the pass
	Errors []string `json:"errors,omitempty"`
}

// Daemon owns the scheduled reconciliation loop.
//
// Thread safety: safe for concurrent use; RunPass serializes internally
// through the engine and store, and LastPass is mutex-guarded.
type Daemon struct {
	interval   time.Duration
	platform   mediaserver.Client
	engine     *mirror.Engine
	resolver   *assign.Resolver
	reconciler *access.Reconciler

	syncMetrics   metrics.SyncMetrics
	accessMetrics metrics.AccessMetrics

	mu   sync.Mutex
	last *PassReport
}

// New creates a Daemon wiring the three pipeline stages together.
func New(cfg Config, platform mediaserver.Client, engine *mirror.Engine, resolver *assign.Resolver, reconciler *access.Reconciler) *Daemon {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	return &Daemon{
		interval:      interval,
		platform:      platform,
		engine:        engine,
		resolver:      resolver,
		reconciler:    reconciler,
		syncMetrics:   metrics.NewSyncMetrics(),
		accessMetrics: metrics.NewAccessMetrics(),
	}
}

// Run executes passes until the context is cancelled. A pass runs
// immediately on start, then on every interval tick. Pass failures are
// logged and never stop the loop.
func (d *Daemon) Run(ctx context.Context) error {
	logger.Info("reconciliation loop started", "interval", d.interval.String())

	if _, err := d.RunPass(ctx); err != nil && ctx.Err() == nil {
		logger.Error("initial reconciliation pass failed", "error", err)
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("reconciliation loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := d.RunPass(ctx); err != nil && ctx.Err() == nil {
				logger.Error("scheduled reconciliation pass failed", "error", err)
			}
		}
	}
}

// RunPass executes one full pass: mirror sync, assignment resolution,
// access reconciliation. Per-entity failures are collected in the report;
// only infrastructure failures (store unavailable, user listing failed)
// surface as the returned error.
func (d *Daemon) RunPass(ctx context.Context) (*PassReport, error) {
	report := &PassReport{StartedAt: time.Now()}

	mirrorStart := time.Now()
	mirrorReport, err := d.engine.ForceSync(ctx)
	d.syncMetrics.RecordPass(time.Since(mirrorStart), err)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("mirror sync: %v", err))
	}
	if mirrorReport != nil {
		report.Mirror = mirrorReport
		d.syncMetrics.RecordMirrors(
			mirrorReport.Created,
			mirrorReport.Updated,
			mirrorReport.Removed,
			mirrorReport.Stale,
			len(mirrorReport.Errors))
		for _, me := range mirrorReport.Errors {
			report.Errors = append(report.Errors, me.Error())
		}
	}
	if err != nil {
		// Without a mirror pass the access computation would act on a
		// topology of unknown staleness; stop here and retry next tick.
		d.finish(report)
		return report, err
	}

	outcomes, err := d.resolver.ResolveAll(ctx)
	report.UsersResolved = len(outcomes)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("assignment resolution: %v", err))
	}

	accessStart := time.Now()
	results, err := d.reconciler.ReconcileAll(ctx)
	d.accessMetrics.RecordPass(time.Since(accessStart), err)
	report.UsersReconciled = len(results)
	for _, res := range results {
		d.accessMetrics.RecordUser(len(res.Granted), len(res.Revoked), res.Updated)
	}
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("access reconciliation: %v", err))
	}

	d.finish(report)
	logger.Debug("reconciliation pass complete",
		"duration", report.Duration.String(),
		"resolved", report.UsersResolved,
		"reconciled", report.UsersReconciled,
		"errors", len(report.Errors))
	return report, nil
}

func (d *Daemon) finish(report *PassReport) {
	report.Duration = time.Since(report.StartedAt)

	d.mu.Lock()
	d.last = report
	d.mu.Unlock()
}

// LastPass returns the most recent pass report, or nil before the first
// pass completes.
func (d *Daemon) LastPass() *PassReport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// OnUserCreated resolves and reconciles a newly created user account.
// Invoked by the event webhook; the scheduled pass would eventually catch
// the user anyway, this just closes the gap.
func (d *Daemon) OnUserCreated(ctx context.Context, userID string) error {
	users, err := d.platform.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list media server users: %w", err)
	}

	var user *mediaserver.User
	for i := range users {
		if users[i].ID == userID {
			user = &users[i]
			break
		}
	}
	if user == nil {
		return fmt.Errorf("user %q not found on media server", userID)
	}

	if _, err := d.resolver.ResolveUser(ctx, *user); err != nil {
		return err
	}
	_, err = d.reconciler.ReconcileUser(ctx, userID)
	return err
}

// OnUserDeleted drops the assignment bookkeeping for a deleted account.
func (d *Daemon) OnUserDeleted(ctx context.Context, userID string) error {
	return d.resolver.ForgetUser(ctx, userID)
}
