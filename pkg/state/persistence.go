package state

import (
	"context"
	"encoding/json"
	"fmt"
)

// Persistence stores the desired-state document durably.
//
// The Store persists the whole document on every committed update and loads
// it once at startup; backends never see partial documents. Implementations
// must be safe for the Store's serialized call pattern but are not required
// to support concurrent calls.
//
// Load returns a *StateError with code ErrNotFound when no document has
// been saved yet; the Store treats that as a fresh installation.
type Persistence interface {
	// Load reads the most recently saved document.
	Load(ctx context.Context) (*Document, error)

	// Save durably writes the document, replacing any previous one.
	Save(ctx context.Context, doc *Document) error

	// Close releases backend resources.
	Close() error
}

// EncodeDocument serializes a document for storage. All backends share one
// encoding so documents can be moved between backends.
func EncodeDocument(doc *Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode state document: %w", err)
	}
	return data, nil
}

// DecodeDocument deserializes a stored document.
func DecodeDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode state document: %w", err)
	}
	return &doc, nil
}
