// Package access computes which libraries each user should see and
// corrects the host platform's live permission records to match.
//
// The expected set is derived from the user's effective language
// assignment and the global mirror topology: source libraries hide once
// an active mirror of them exists anywhere, mirror libraries show only
// to users of their own alternative, and everything unmirrored is always
// visible. Users with no effective assignment are unmanaged; their
// permissions are never touched.
package access

import (
	"context"
	"fmt"
	"sort"

	"github.com/marmos91/langmirror/internal/logger"
	"github.com/marmos91/langmirror/pkg/mediaserver"
	"github.com/marmos91/langmirror/pkg/state"
)

// Reconciler enforces per-user library visibility.
//
// Thread safety: safe for concurrent use.
type Reconciler struct {
	store    *state.Store
	platform mediaserver.Client
}

// NewReconciler creates a Reconciler.
func NewReconciler(store *state.Store, platform mediaserver.Client) *Reconciler {
	return &Reconciler{
		store:    store,
		platform: platform,
	}
}

// Reconciliation reports what one user's reconciliation did.
type Reconciliation struct {
	// UserID is the reconciled user
	UserID string

	// Managed reports whether the user has an effective assignment and
	// their permissions are therefore under langmirror's control
	Managed bool

	// Granted lists library ids newly made visible
	Granted []string

	// Revoked lists library ids newly hidden
	Revoked []string

	// Updated reports whether a permission write was issued
	Updated bool
}

// ExpectedLibraryAccess returns the full set of library ids the user
// should see, not a diff. An empty set means the user has no effective
// assignment and no language-based restriction applies.
func (r *Reconciler) ExpectedLibraryAccess(ctx context.Context, userID string) ([]string, error) {
	snap, err := r.store.Snapshot()
	if err != nil {
		return nil, err
	}

	asg := snap.Assignment(userID)
	if asg == nil || asg.AlternativeID == "" {
		return nil, nil
	}

	libraries, err := r.platform.ListLibraries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list host libraries: %w", err)
	}

	// hiddenSources: sources with an active mirror anywhere lose direct
	// visibility. Pending mirrors do not hide their source; users keep
	// the original until the replacement actually exists.
	// mirrorTargets: every materialized mirror library, any alternative.
	// userTargets: the active mirrors of the user's own alternative.
	hiddenSources := make(map[string]bool)
	mirrorTargets := make(map[string]bool)
	userTargets := make(map[string]bool)

	for ai := range snap.Alternatives {
		alt := &snap.Alternatives[ai]
		for mi := range alt.Libraries {
			m := &alt.Libraries[mi]
			if m.TargetID != "" {
				mirrorTargets[m.TargetID] = true
			}
			if !m.Active() {
				continue
			}
			hiddenSources[m.SourceID] = true
			if alt.ID == asg.AlternativeID {
				userTargets[m.TargetID] = true
			}
		}
	}

	expected := make([]string, 0, len(libraries))
	for _, lib := range libraries {
		switch {
		case hiddenSources[lib.ID]:
		case mirrorTargets[lib.ID]:
			if userTargets[lib.ID] {
				expected = append(expected, lib.ID)
			}
		default:
			expected = append(expected, lib.ID)
		}
	}

	sort.Strings(expected)
	return expected, nil
}

// ReconcileUser corrects one user's live permissions to the expected
// set. The corrected set is installed in a single permission write so a
// mid-failure never leaves the user part-granted. Unmanaged users are
// left entirely alone.
func (r *Reconciler) ReconcileUser(ctx context.Context, userID string) (Reconciliation, error) {
	result := Reconciliation{UserID: userID}

	expected, err := r.ExpectedLibraryAccess(ctx, userID)
	if err != nil {
		return result, err
	}
	if expected == nil {
		return result, nil
	}
	result.Managed = true

	current, allAccess, err := r.platform.UserLibraryPermissions(ctx, userID)
	if err != nil {
		return result, fmt.Errorf("failed to read permissions for user %q: %w", userID, err)
	}

	currentSet := make(map[string]bool, len(current))
	for _, id := range current {
		currentSet[id] = true
	}
	expectedSet := make(map[string]bool, len(expected))
	for _, id := range expected {
		expectedSet[id] = true
		if !currentSet[id] {
			result.Granted = append(result.Granted, id)
		}
	}
	for _, id := range current {
		if !expectedSet[id] {
			result.Revoked = append(result.Revoked, id)
		}
	}
	sort.Strings(result.Revoked)

	// An all-access bypass defeats per-library restriction even when the
	// explicit list happens to match; it must be cleared.
	if len(result.Granted) == 0 && len(result.Revoked) == 0 && !allAccess {
		return result, nil
	}

	if err := r.platform.SetUserLibraryPermissions(ctx, userID, expected); err != nil {
		return result, fmt.Errorf("failed to update permissions for user %q: %w", userID, err)
	}
	result.Updated = true

	logger.Info("user library access reconciled",
		"user", userID,
		"granted", len(result.Granted),
		"revoked", len(result.Revoked))
	return result, nil
}

// ReconcileAll reconciles every user account on the media server.
// Per-user failures are isolated; the error summarizes how many failed.
func (r *Reconciler) ReconcileAll(ctx context.Context) ([]Reconciliation, error) {
	users, err := r.platform.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list media server users: %w", err)
	}

	results := make([]Reconciliation, 0, len(users))
	failed := 0
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result, err := r.ReconcileUser(ctx, user.ID)
		if err != nil {
			failed++
			logger.Error("failed to reconcile user access", "user", user.Name, "error", err)
			continue
		}
		results = append(results, result)
	}

	if failed > 0 {
		return results, fmt.Errorf("reconciliation failed for %d of %d users", failed, len(users))
	}
	return results, nil
}
