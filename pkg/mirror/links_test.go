package mirror

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDesiredLinks_BasenameCollision(t *testing.T) {
	links := desiredLinks([]string{"/disk1/movies", "/disk2/movies"})
	require.Len(t, links, 2)
	assert.Equal(t, "/disk1/movies", links["movies"])
	assert.Equal(t, "/disk2/movies", links["movies-2"])
}

func TestApplyLinks_ConflictingEntrySkipped(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(t.TempDir(), "movies")
	require.NoError(t, os.MkdirAll(target, 0o755))

	// A real directory already owns the name the link wants.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "movies"), 0o755))

	names, writes, conflicts, err := applyLinks(dir, map[string]string{"movies": target}, nil)
	require.NoError(t, err)
	assert.Zero(t, writes)
	assert.Empty(t, names)
	assert.Equal(t, []string{"movies"}, conflicts)
}

func TestApplyLinks_RetargetsManagedLink(t *testing.T) {
	dir := t.TempDir()
	oldTarget := filepath.Join(t.TempDir(), "old")
	newTarget := filepath.Join(t.TempDir(), "new")
	require.NoError(t, os.MkdirAll(oldTarget, 0o755))
	require.NoError(t, os.MkdirAll(newTarget, 0o755))
	require.NoError(t, os.Symlink(oldTarget, filepath.Join(dir, "movies")))

	names, writes, conflicts, err := applyLinks(dir, map[string]string{"movies": newTarget}, []string{"movies"})
	require.NoError(t, err)
	assert.Equal(t, 1, writes)
	assert.Empty(t, conflicts)
	assert.Equal(t, []string{"movies"}, names)

	current, err := os.Readlink(filepath.Join(dir, "movies"))
	require.NoError(t, err)
	assert.Equal(t, newTarget, current)
}

func TestApplyLinks_DoesNotRetargetForeignLink(t *testing.T) {
	dir := t.TempDir()
	foreignTarget := filepath.Join(t.TempDir(), "foreign")
	newTarget := filepath.Join(t.TempDir(), "new")
	require.NoError(t, os.MkdirAll(foreignTarget, 0o755))
	require.NoError(t, os.MkdirAll(newTarget, 0o755))
	require.NoError(t, os.Symlink(foreignTarget, filepath.Join(dir, "movies")))

	_, writes, conflicts, err := applyLinks(dir, map[string]string{"movies": newTarget}, nil)
	require.NoError(t, err)
	assert.Zero(t, writes)
	assert.Equal(t, []string{"movies"}, conflicts)

	current, err := os.Readlink(filepath.Join(dir, "movies"))
	require.NoError(t, err)
	assert.Equal(t, foreignTarget, current)
}

func TestApplyLinks_IdempotentSecondRun(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(t.TempDir(), "movies")
	require.NoError(t, os.MkdirAll(target, 0o755))

	desired := map[string]string{"movies": target}

	names, writes, _, err := applyLinks(dir, desired, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, writes)

	_, writes, _, err = applyLinks(dir, desired, names)
	require.NoError(t, err)
	assert.Zero(t, writes)
}
