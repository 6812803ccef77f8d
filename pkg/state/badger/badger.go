// Package badger provides a BadgerDB state persistence backend.
//
// The document is stored under a single key; BadgerDB's write-ahead log
// gives crash-safe durability without any file juggling on our side. The
// backend suits installations that already run langmirror on a host with
// fast local disk and want history-free durable state.
package badger

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/langmirror/pkg/state"
)

// documentKey is the single key the state document lives under.
var documentKey = []byte("langmirror/state/document")

// BadgerPersistence stores the document in an embedded BadgerDB.
type BadgerPersistence struct {
	db *badger.DB
}

// Config contains configuration for the Badger backend.
type Config struct {
	// Path is the directory for the BadgerDB files
	Path string

	// BadgerOptions overrides the default options entirely when set
	BadgerOptions *badger.Options
}

// New opens (or creates) a BadgerDB at the configured path.
func New(ctx context.Context, cfg Config) (*BadgerPersistence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Path == "" && cfg.BadgerOptions == nil {
		return nil, fmt.Errorf("badger state backend: path is required")
	}

	var opts badger.Options
	if cfg.BadgerOptions != nil {
		opts = *cfg.BadgerOptions
	} else {
		// The workload is one small value rewritten occasionally;
		// default caches would be pure overhead.
		opts = badger.DefaultOptions(cfg.Path)
		opts = opts.WithLoggingLevel(badger.WARNING)
		opts = opts.WithBlockCacheSize(8 << 20)
		opts = opts.WithIndexCacheSize(8 << 20)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.Path, err)
	}

	return &BadgerPersistence{db: db}, nil
}

// Load reads and decodes the document.
// Returns ErrNotFound when no document has been saved yet.
func (p *BadgerPersistence) Load(ctx context.Context) (*state.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(documentKey)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, &state.StateError{Code: state.ErrNotFound, Message: "no state document saved"}
		}
		return nil, fmt.Errorf("failed to load state document: %w", err)
	}

	return state.DecodeDocument(data)
}

// Save writes the document in a single transaction.
func (p *BadgerPersistence) Save(ctx context.Context, doc *state.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := state.EncodeDocument(doc)
	if err != nil {
		return err
	}

	if err := p.db.Update(func(txn *badger.Txn) error {
		return txn.Set(documentKey, data)
	}); err != nil {
		return fmt.Errorf("failed to save state document: %w", err)
	}

	return nil
}

// Close closes the underlying database.
func (p *BadgerPersistence) Close() error {
	return p.db.Close()
}
