package state

import (
	"context"
	"sync"
	"time"
)

// Store owns the canonical desired-state document.
//
// All reads and writes funnel through a single critical section; this is the
// only lock in the system. Callers never receive a live reference to the
// canonical document: reads hand out deep copies, and updates run the
// caller's mutation against a deep copy which is deep-copied *again* before
// being installed as canonical. The second copy severs references to any
// objects the mutation constructed and attached from outside the snapshot,
// so the stored document is insulated from caller-held references.
//
// Concurrent writers coordinate through UpdateIf's optimistic re-validation:
// the mutation re-checks its precondition against the fresh copy inside the
// critical section and returns false to drop the change as a no-op.
//
// Example usage:
//
//	store := state.NewStore(persistence)
//	if err := store.Open(ctx); err != nil { ... }
//
//	alt, err := state.Read(store, func(d *state.Document) *state.LanguageAlternative {
//	    return d.Alternative("pt-br")
//	})
//
//	committed, err := store.UpdateIf(ctx, func(d *state.Document) bool {
//	    a := d.Assignment(userID)
//	    if a != nil && a.ManuallySet {
//	        return false // precondition gone, drop silently
//	    }
//	    d.SetAssignment(next)
//	    return true
//	})
type Store struct {
	mu          sync.Mutex
	doc         *Document // nil until Open succeeds
	persistence Persistence

	// now is the clock used for UpdatedAt stamps; replaced in tests
	now func() time.Time
}

// NewStore creates a Store backed by the given persistence backend.
// The store is unavailable until Open is called.
func NewStore(persistence Persistence) *Store {
	return &Store{
		persistence: persistence,
		now:         time.Now,
	}
}

// Open loads the canonical document from the persistence backend.
// A backend with no saved document yields a fresh empty document; that is
// a normal first run, not an error.
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.persistence.Load(ctx)
	if err != nil {
		if IsCode(err, ErrNotFound) {
			s.doc = NewDocument()
			return nil
		}
		return err
	}

	s.doc = doc
	return nil
}

// Close releases the persistence backend. The store becomes unavailable.
func (s *Store) Close() error {
	s.mu.Lock()
	s.doc = nil
	s.mu.Unlock()
	return s.persistence.Close()
}

// Snapshot returns a disconnected deep copy of the canonical document.
func (s *Store) Snapshot() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		return nil, &StateError{Code: ErrUnavailable, Message: "no state document loaded"}
	}
	return s.doc.Clone(), nil
}

// Read evaluates selector against a snapshot of the canonical document and
// returns its result. The selector runs on a deep copy; anything it returns
// is safe to retain and mutate.
func Read[T any](s *Store, selector func(*Document) T) (T, error) {
	snap, err := s.Snapshot()
	if err != nil {
		var zero T
		return zero, err
	}
	return selector(snap), nil
}

// Update runs mutation against a deep copy of the canonical document and
// unconditionally commits the result: the mutated copy is deep-copied once
// more, installed as canonical, and persisted.
//
// If persistence fails the canonical document is left unchanged and the
// error is returned; no partial state is ever installed.
func (s *Store) Update(ctx context.Context, mutation func(*Document) error) error {
	_, err := s.update(ctx, func(d *Document) (bool, error) {
		if err := mutation(d); err != nil {
			return false, err
		}
		return true, nil
	})
	return err
}

// UpdateIf runs mutation against a deep copy of the canonical document and
// commits only if the mutation returns true. A false return means a
// precondition no longer held; the change is dropped silently and (false,
// nil) is returned. Callers treat that as "retry or skip", never an error.
func (s *Store) UpdateIf(ctx context.Context, mutation func(*Document) bool) (bool, error) {
	return s.update(ctx, func(d *Document) (bool, error) {
		return mutation(d), nil
	})
}

func (s *Store) update(ctx context.Context, mutation func(*Document) (bool, error)) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		return false, &StateError{Code: ErrUnavailable, Message: "no state document loaded"}
	}

	// First copy: the mutation never touches the canonical document.
	working := s.doc.Clone()

	commit, err := mutation(working)
	if err != nil {
		return false, err
	}
	if !commit {
		return false, nil
	}

	// Second copy: sever references to anything the mutation attached
	// from outside the snapshot.
	next := working.Clone()
	next.Version++
	next.UpdatedAt = s.now()

	if err := s.persistence.Save(ctx, next); err != nil {
		return false, &StateError{Code: ErrIOError, Message: "failed to persist state document: " + err.Error()}
	}

	s.doc = next
	return true, nil
}

// Version returns the canonical document's version, or 0 when unavailable.
// Used by the mirror engine to detect unchanged configuration between runs.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		return 0
	}
	return s.doc.Version
}
