// Package assign resolves which language alternative each media server
// user should get.
//
// Resolution order per user: a manual assignment always stands; otherwise
// LDAP group mappings are consulted (highest priority wins, declaration
// order breaks ties); otherwise the configured default alternative is
// applied. A directory failure degrades to the default rather than
// failing the pass.
package assign

import (
	"context"
	"fmt"

	"github.com/marmos91/langmirror/internal/logger"
	"github.com/marmos91/langmirror/pkg/directory"
	"github.com/marmos91/langmirror/pkg/mediaserver"
	"github.com/marmos91/langmirror/pkg/state"
)

// Resolver computes and records user language assignments.
//
// Thread safety: safe for concurrent use; all state access goes through
// the store's critical section.
type Resolver struct {
	store     *state.Store
	platform  mediaserver.Client
	directory directory.Service
}

// NewResolver creates a Resolver.
func NewResolver(store *state.Store, platform mediaserver.Client, dir directory.Service) *Resolver {
	return &Resolver{
		store:     store,
		platform:  platform,
		directory: dir,
	}
}

// Outcome describes what a resolution did for one user.
type Outcome struct {
	// UserID is the resolved user
	UserID string

	// AlternativeID is the effective alternative after resolution;
	// empty means the user ended up unassigned
	AlternativeID string

	// Source records how the assignment was produced
	Source state.AssignmentSource

	// Changed reports whether the stored assignment was modified
	Changed bool
}

// ResolveUser resolves and records the assignment for a single user.
//
// Manual assignments are never overwritten. The write is committed with
// optimistic re-validation, so a manual assignment racing in between
// snapshot and commit also stands; the resolution is then dropped as a
// no-op.
func (r *Resolver) ResolveUser(ctx context.Context, user mediaserver.User) (Outcome, error) {
	snap, err := r.store.Snapshot()
	if err != nil {
		return Outcome{}, err
	}

	if existing := snap.Assignment(user.ID); existing != nil && existing.ManuallySet {
		return Outcome{
			UserID:        user.ID,
			AlternativeID: existing.AlternativeID,
			Source:        state.SourceManual,
		}, nil
	}

	altID, source := r.resolve(ctx, snap, user)

	// Resolution can point at an alternative that was deleted since the
	// mapping was written; treat that as no match.
	if altID != "" && snap.Alternative(altID) == nil {
		logger.Warn("resolved alternative no longer exists, leaving user unassigned",
			"user", user.Name,
			"alternative", altID)
		altID, source = "", ""
	}

	if existing := snap.Assignment(user.ID); existing != nil &&
		existing.AlternativeID == altID && existing.Source == source {
		return Outcome{UserID: user.ID, AlternativeID: altID, Source: source}, nil
	}

	next := state.UserLanguageAssignment{
		UserID:        user.ID,
		AlternativeID: altID,
		Source:        source,
		Managed:       true,
	}

	committed, err := r.store.UpdateIf(ctx, func(d *state.Document) bool {
		if current := d.Assignment(user.ID); current != nil && current.ManuallySet {
			return false
		}
		if altID != "" && d.Alternative(altID) == nil {
			return false
		}
		d.SetAssignment(next)
		return true
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to record assignment for user %q: %w", user.ID, err)
	}

	if committed {
		logger.Info("user language assignment updated",
			"user", user.Name,
			"alternative", altID,
			"source", string(source))
	}

	return Outcome{
		UserID:        user.ID,
		AlternativeID: altID,
		Source:        source,
		Changed:       committed,
	}, nil
}

// resolve computes the target alternative without touching the store.
func (r *Resolver) resolve(ctx context.Context, snap *state.Document, user mediaserver.User) (string, state.AssignmentSource) {
	if snap.Settings.LdapEnabled {
		groups, err := r.directory.UserGroups(ctx, user.Name)
		if err != nil {
			logger.Warn("directory lookup failed, falling back to default alternative",
				"user", user.Name,
				"error", err)
		} else if altID := matchMapping(snap.GroupMappings, groups); altID != "" {
			return altID, state.SourceLDAP
		}
	}

	if snap.Settings.AutoAssign && snap.Settings.DefaultAlternativeID != "" {
		return snap.Settings.DefaultAlternativeID, state.SourceAuto
	}

	return "", ""
}

// matchMapping picks the winning mapping for a user's group set: the
// numerically largest priority wins, and among equal priorities the
// earliest-declared mapping wins.
func matchMapping(mappings []state.LdapGroupMapping, groups []string) string {
	member := make(map[string]bool, len(groups))
	for _, g := range groups {
		member[g] = true
	}

	best := ""
	bestPriority := 0
	for _, m := range mappings {
		if !member[m.GroupDN] {
			continue
		}
		if best == "" || m.Priority > bestPriority {
			best = m.AlternativeID
			bestPriority = m.Priority
		}
	}
	return best
}

// ResolveAll resolves every user account on the media server.
//
// Per-user failures are logged and counted but never abort the pass;
// the error summarizes how many users failed.
func (r *Resolver) ResolveAll(ctx context.Context) ([]Outcome, error) {
	users, err := r.platform.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list media server users: %w", err)
	}

	outcomes := make([]Outcome, 0, len(users))
	failed := 0
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		outcome, err := r.ResolveUser(ctx, user)
		if err != nil {
			failed++
			logger.Error("failed to resolve user language", "user", user.Name, "error", err)
			continue
		}
		outcomes = append(outcomes, outcome)
	}

	if failed > 0 {
		return outcomes, fmt.Errorf("resolution failed for %d of %d users", failed, len(users))
	}
	return outcomes, nil
}

// SetManual records an administrator-chosen assignment. Manual
// assignments are protected from automatic resolution until cleared.
// Passing an empty alternative id pins the user as explicitly unassigned.
func (r *Resolver) SetManual(ctx context.Context, userID, alternativeID string) error {
	return r.store.Update(ctx, func(d *state.Document) error {
		if alternativeID != "" && d.Alternative(alternativeID) == nil {
			return &state.StateError{Code: state.ErrNotFound, Message: "alternative not found", Key: alternativeID}
		}
		d.SetAssignment(state.UserLanguageAssignment{
			UserID:        userID,
			AlternativeID: alternativeID,
			Source:        state.SourceManual,
			ManuallySet:   true,
			Managed:       true,
		})
		return nil
	})
}

// ClearManual lifts the manual protection so the next resolution pass
// re-computes the user's assignment.
func (r *Resolver) ClearManual(ctx context.Context, userID string) error {
	return r.store.Update(ctx, func(d *state.Document) error {
		a := d.Assignment(userID)
		if a == nil {
			return &state.StateError{Code: state.ErrNotFound, Message: "no assignment for user", Key: userID}
		}
		a.ManuallySet = false
		return nil
	})
}

// ForgetUser drops the assignment record for a deleted user account.
// Unknown users are a no-op.
func (r *Resolver) ForgetUser(ctx context.Context, userID string) error {
	_, err := r.store.UpdateIf(ctx, func(d *state.Document) bool {
		return d.RemoveAssignment(userID)
	})
	return err
}
