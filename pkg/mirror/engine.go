// Package mirror keeps the on-disk mirror trees and the host platform's
// registered libraries in line with the mirror declarations in state.
//
// A mirror is a link-based projection of a source library: a directory
// under the alternative's base path holding one symlink per source root
// folder, registered on the host platform as a library of its own. The
// engine never copies content and never deletes anything it did not
// create; teardown of removed declarations is driven by the retired-mirror
// queue in the state document and survives restarts.
package mirror

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/marmos91/langmirror/internal/logger"
	"github.com/marmos91/langmirror/pkg/mediaserver"
	"github.com/marmos91/langmirror/pkg/state"
)

// Report summarizes one sync pass.
type Report struct {
	// RunID identifies the pass in logs and reports
	RunID string

	// Created counts mirrors that went from pending to active
	Created int

	// Updated counts active mirrors whose link set was corrected
	Updated int

	// Removed counts retired mirrors fully torn down
	Removed int

	// Stale counts mirrors newly marked stale in this pass
	Stale int

	// Errors lists the per-mirror failures; the pass continues past them
	Errors []MirrorError
}

// Changed reports whether the pass touched anything.
func (r *Report) Changed() bool {
	return r.Created > 0 || r.Updated > 0 || r.Removed > 0 || r.Stale > 0
}

// MirrorError identifies which mirror a failure belongs to.
type MirrorError struct {
	AlternativeID string
	SourceID      string
	Err           error
}

func (e MirrorError) Error() string {
	return fmt.Sprintf("mirror %s/%s: %v", e.AlternativeID, e.SourceID, e.Err)
}

func (e MirrorError) Unwrap() error {
	return e.Err
}

// Engine runs mirror synchronization passes.
//
// Thread safety: safe for concurrent use; passes serialize on an internal
// mutex so two overlapping triggers never interleave filesystem work.
type Engine struct {
	store    *state.Store
	platform mediaserver.Client

	mu sync.Mutex

	// synced is the state version the last clean pass left behind; 0
	// forces a full pass. Sync short-circuits when the version still
	// matches, which is what makes back-to-back runs free.
	synced uint64
}

// NewEngine creates an Engine.
func NewEngine(store *state.Store, platform mediaserver.Client) *Engine {
	return &Engine{
		store:    store,
		platform: platform,
	}
}

// Sync runs a pass only if the state document changed since the last
// clean pass. An unchanged document yields an empty report with no
// filesystem or host-platform activity at all.
func (e *Engine) Sync(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if v := e.store.Version(); v != 0 && v == e.synced {
		logger.Debug("mirror state unchanged, skipping sync pass", "version", v)
		return &Report{RunID: uuid.NewString()}, nil
	}
	return e.run(ctx)
}

// ForceSync always runs a full pass, re-diffing every mirror directory
// against its source. Scheduled passes use this so drift introduced
// outside the daemon (deleted links, crashed partial writes) is repaired
// even when the state document did not change.
func (e *Engine) ForceSync(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run(ctx)
}

func (e *Engine) run(ctx context.Context) (*Report, error) {
	startVersion := e.store.Version()

	snap, err := e.store.Snapshot()
	if err != nil {
		return nil, err
	}

	libraries, err := e.platform.ListLibraries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list host libraries: %w", err)
	}
	byID := make(map[string]mediaserver.Library, len(libraries))
	for _, lib := range libraries {
		byID[lib.ID] = lib
	}

	report := &Report{RunID: uuid.NewString()}
	commits := 0

	for ai := range snap.Alternatives {
		alt := &snap.Alternatives[ai]
		for mi := range alt.Libraries {
			// Cancellation is only honored between mirrors so no single
			// mirror directory is left half-linked by a shutdown.
			if err := ctx.Err(); err != nil {
				return report, err
			}

			m := &alt.Libraries[mi]
			n, err := e.syncMirror(ctx, alt, m, byID, report)
			commits += n
			if err != nil {
				report.Errors = append(report.Errors, MirrorError{
					AlternativeID: alt.ID,
					SourceID:      m.SourceID,
					Err:           err,
				})
				logger.Error("mirror sync failed",
					"alternative", alt.ID,
					"source", m.SourceID,
					"error", err)
			}
		}
	}

	for _, retired := range snap.Retired {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		n, err := e.teardownRetired(ctx, retired, report)
		commits += n
		if err != nil {
			report.Errors = append(report.Errors, MirrorError{
				AlternativeID: retired.AlternativeID,
				SourceID:      retired.SourceID,
				Err:           err,
			})
			logger.Error("mirror teardown failed",
				"alternative", retired.AlternativeID,
				"source", retired.SourceID,
				"error", err)
		}
	}

	// Arm the fast path only after a clean pass, and only if nobody else
	// wrote to the document while we ran; otherwise the next Sync does a
	// full pass again.
	final := e.store.Version()
	if len(report.Errors) == 0 && final == startVersion+uint64(commits) {
		e.synced = final
	} else {
		e.synced = 0
	}

	if report.Changed() {
		logger.Info("mirror sync pass complete",
			"run_id", report.RunID,
			"created", report.Created,
			"updated", report.Updated,
			"removed", report.Removed,
			"stale", report.Stale,
			"errors", len(report.Errors))
	}

	return report, nil
}

// syncMirror brings one mirror in line with its source. Returns the
// number of state commits it made.
func (e *Engine) syncMirror(ctx context.Context, alt *state.LanguageAlternative, m *state.MirroredLibrary, byID map[string]mediaserver.Library, report *Report) (int, error) {
	commits := 0

	source, live := byID[m.SourceID]
	if !live {
		if m.Stale {
			return 0, nil
		}
		committed, err := e.setStale(ctx, alt.ID, m.SourceID, true)
		if err != nil {
			return commits, err
		}
		if committed {
			commits++
			report.Stale++
			logger.Warn("source library gone, mirror marked stale",
				"alternative", alt.ID,
				"source", m.SourceID,
				"source_name", m.SourceName)
		}
		return commits, nil
	}

	if m.Stale {
		committed, err := e.setStale(ctx, alt.ID, m.SourceID, false)
		if err != nil {
			return commits, err
		}
		if committed {
			commits++
			logger.Info("source library back, mirror no longer stale",
				"alternative", alt.ID,
				"source", m.SourceID)
		}
	}

	dir := alt.MirrorPath(m)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return commits, fmt.Errorf("failed to create mirror directory %q: %w", dir, err)
	}

	names, writes, conflicts, err := applyLinks(dir, desiredLinks(source.Paths), m.LinkNames)
	if err != nil {
		return commits, err
	}
	for _, name := range conflicts {
		logger.Warn("mirror entry occupied by unmanaged content, skipped",
			"alternative", alt.ID,
			"source", m.SourceID,
			"entry", name)
	}

	if !sameNames(names, m.LinkNames) {
		committed, err := e.setLinkNames(ctx, alt.ID, m.SourceID, names)
		if err != nil {
			return commits, err
		}
		if committed {
			commits++
		}
	}

	if m.Pending() {
		n, err := e.materialize(ctx, alt, m, dir, byID)
		commits += n
		if err != nil {
			return commits, err
		}
		if n > 0 {
			report.Created++
		}
		return commits, nil
	}

	if writes > 0 {
		report.Updated++
	}
	return commits, nil
}

// materialize registers the mirror directory as a host-platform library
// and records the returned id. If the declaration disappeared while the
// library was being created, the registration is rolled back and the
// directory removed.
func (e *Engine) materialize(ctx context.Context, alt *state.LanguageAlternative, m *state.MirroredLibrary, dir string, byID map[string]mediaserver.Library) (int, error) {
	targetID := ""

	// A crash between CreateLibrary and the state write leaves a live
	// library with no recorded id; adopt it by path instead of creating
	// a duplicate.
	for _, lib := range byID {
		for _, p := range lib.Paths {
			if p == dir {
				targetID = lib.ID
				break
			}
		}
		if targetID != "" {
			break
		}
	}

	created := false
	if targetID == "" {
		id, err := e.platform.CreateLibrary(ctx, m.DisplayName(), []string{dir})
		if err != nil {
			return 0, fmt.Errorf("failed to create host library: %w", err)
		}
		targetID = id
		created = true
	}

	committed, err := e.store.UpdateIf(ctx, func(d *state.Document) bool {
		a := d.Alternative(alt.ID)
		if a == nil {
			return false
		}
		current := a.Mirror(m.SourceID)
		if current == nil || !current.Pending() {
			return false
		}
		current.TargetID = targetID
		return true
	})
	if err != nil {
		return 0, err
	}

	if !committed {
		// Declaration deleted out from under us: abandon and clean up.
		logger.Warn("mirror declaration gone during creation, abandoning",
			"alternative", alt.ID,
			"source", m.SourceID)
		if created {
			if rerr := e.platform.RemoveLibrary(ctx, targetID); rerr != nil {
				logger.Error("failed to roll back abandoned mirror library",
					"library", targetID, "error", rerr)
			}
		}
		if rerr := os.RemoveAll(dir); rerr != nil {
			logger.Error("failed to remove abandoned mirror directory",
				"path", dir, "error", rerr)
		}
		return 0, nil
	}

	logger.Info("mirror library created",
		"alternative", alt.ID,
		"source", m.SourceID,
		"target", targetID,
		"path", dir)
	return 1, nil
}

// teardownRetired removes a retired mirror's directory and host library,
// then drops its bookkeeping entry. Directory-removal failure is logged
// but does not keep the entry alive; a host-platform failure does, so
// the retirement is retried next pass.
func (e *Engine) teardownRetired(ctx context.Context, retired state.RetiredMirror, report *Report) (int, error) {
	if retired.TargetID != "" {
		if err := e.platform.RemoveLibrary(ctx, retired.TargetID); err != nil {
			return 0, fmt.Errorf("failed to retire host library %q: %w", retired.TargetID, err)
		}
	}

	if err := os.RemoveAll(retired.Path); err != nil {
		logger.Warn("failed to remove retired mirror directory",
			"path", retired.Path, "error", err)
	}

	committed, err := e.store.UpdateIf(ctx, func(d *state.Document) bool {
		for i := range d.Retired {
			if d.Retired[i] == retired {
				d.Retired = append(d.Retired[:i], d.Retired[i+1:]...)
				return true
			}
		}
		return false
	})
	if err != nil {
		return 0, err
	}

	if committed {
		report.Removed++
		logger.Info("retired mirror torn down",
			"alternative", retired.AlternativeID,
			"source", retired.SourceID,
			"path", retired.Path)
		return 1, nil
	}
	return 0, nil
}

func (e *Engine) setStale(ctx context.Context, altID, sourceID string, stale bool) (bool, error) {
	return e.store.UpdateIf(ctx, func(d *state.Document) bool {
		a := d.Alternative(altID)
		if a == nil {
			return false
		}
		m := a.Mirror(sourceID)
		if m == nil || m.Stale == stale {
			return false
		}
		m.Stale = stale
		return true
	})
}

func (e *Engine) setLinkNames(ctx context.Context, altID, sourceID string, names []string) (bool, error) {
	return e.store.UpdateIf(ctx, func(d *state.Document) bool {
		a := d.Alternative(altID)
		if a == nil {
			return false
		}
		m := a.Mirror(sourceID)
		if m == nil || sameNames(m.LinkNames, names) {
			return false
		}
		m.LinkNames = names
		return true
	})
}
