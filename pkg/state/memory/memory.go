// Package memory provides an in-memory state persistence backend.
//
// Nothing survives a restart; this backend exists for tests and for
// ephemeral runs where durability is explicitly not wanted.
package memory

import (
	"context"
	"sync"

	"github.com/marmos91/langmirror/pkg/state"
)

// MemoryPersistence keeps the saved document in process memory.
//
// Thread safety: all methods are safe for concurrent use.
type MemoryPersistence struct {
	mu  sync.Mutex
	doc *state.Document
}

// New creates an empty in-memory persistence backend.
func New() *MemoryPersistence {
	return &MemoryPersistence{}
}

// Load returns a copy of the last saved document.
// Returns ErrNotFound when nothing has been saved yet.
func (p *MemoryPersistence) Load(ctx context.Context) (*state.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.doc == nil {
		return nil, &state.StateError{Code: state.ErrNotFound, Message: "no state document saved"}
	}
	return p.doc.Clone(), nil
}

// Save stores a copy of the document, replacing any previous one.
func (p *MemoryPersistence) Save(ctx context.Context, doc *state.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.doc = doc.Clone()
	return nil
}

// Close discards the stored document.
func (p *MemoryPersistence) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.doc = nil
	return nil
}
