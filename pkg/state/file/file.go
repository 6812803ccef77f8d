// Package file provides a JSON-file state persistence backend.
//
// The document is written to a temporary file in the same directory and
// renamed into place, so a crash mid-write never leaves a truncated
// document behind.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/marmos91/langmirror/pkg/state"
)

// FilePersistence stores the document as a single JSON file on disk.
//
// Thread safety: the Store serializes calls; FilePersistence adds no
// locking of its own.
type FilePersistence struct {
	path string
}

// New creates a file persistence backend writing to the given path.
// The parent directory is created if it doesn't exist.
func New(path string) (*FilePersistence, error) {
	if path == "" {
		return nil, fmt.Errorf("state file path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	return &FilePersistence{path: path}, nil
}

// Load reads and decodes the document from disk.
// Returns ErrNotFound when the file doesn't exist.
func (p *FilePersistence) Load(ctx context.Context) (*state.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &state.StateError{Code: state.ErrNotFound, Message: "no state document saved", Key: p.path}
		}
		return nil, fmt.Errorf("failed to read state file %q: %w", p.path, err)
	}

	return state.DecodeDocument(data)
}

// Save atomically replaces the document on disk via write-then-rename.
func (p *FilePersistence) Save(ctx context.Context, doc *state.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := state.EncodeDocument(doc)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(p.path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close state file: %w", err)
	}

	if err := os.Rename(tmpPath, p.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to install state file: %w", err)
	}

	return nil
}

// Close is a no-op for the file backend.
func (p *FilePersistence) Close() error {
	return nil
}
