package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/langmirror/pkg/state"
	"github.com/marmos91/langmirror/pkg/state/statetest"
)

// TestFilePersistence runs the persistence contract suite against the
// JSON-file backend.
func TestFilePersistence(t *testing.T) {
	suite := &statetest.Suite{
		NewPersistence: func(t *testing.T) state.Persistence {
			persistence, err := New(filepath.Join(t.TempDir(), "state.json"))
			require.NoError(t, err)
			return persistence
		},
	}

	suite.Run(t)
}

// TestFilePersistence_NoTempLeftovers verifies the write-then-rename path
// leaves no temporary files behind after a successful save.
func TestFilePersistence_NoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	persistence, err := New(filepath.Join(dir, "state.json"))
	require.NoError(t, err)

	require.NoError(t, persistence.Save(context.Background(), state.NewDocument()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}

// TestFilePersistence_CreatesParentDirectory verifies New creates missing
// parent directories.
func TestFilePersistence_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "state.json")
	persistence, err := New(path)
	require.NoError(t, err)

	require.NoError(t, persistence.Save(context.Background(), state.NewDocument()))

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
