package mirror

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/langmirror/pkg/mediaserver/mediaservertest"
	"github.com/marmos91/langmirror/pkg/state"
	"github.com/marmos91/langmirror/pkg/state/memory"
)

type fixture struct {
	store    *state.Store
	platform *mediaservertest.Fake
	engine   *Engine
	base     string
}

// newFixture seeds one alternative ("pt-br", base path under a temp dir)
// mirroring one source library "Movies" with a single root folder.
func newFixture(t *testing.T) (*fixture, string) {
	t.Helper()

	root := t.TempDir()
	sourceRoot := filepath.Join(root, "media", "movies")
	require.NoError(t, os.MkdirAll(sourceRoot, 0o755))

	platform := mediaservertest.New()
	sourceID := platform.AddLibrary("Movies", sourceRoot)

	base := filepath.Join(root, "mirrors", "pt-br")

	store := state.NewStore(memory.New())
	require.NoError(t, store.Open(context.Background()))
	require.NoError(t, store.Update(context.Background(), func(d *state.Document) error {
		if err := d.AddAlternative(state.LanguageAlternative{
			ID: "pt-br", Name: "Portuguese", LanguageCode: "pt-BR", BasePath: base,
		}); err != nil {
			return err
		}
		return d.AddMirror("pt-br", state.MirroredLibrary{
			SourceID: sourceID, SourceName: "Movies", TargetName: "Filmes",
		})
	}))

	return &fixture{
		store:    store,
		platform: platform,
		engine:   NewEngine(store, platform),
		base:     base,
	}, sourceID
}

func mirrorDecl(t *testing.T, store *state.Store, altID, sourceID string) state.MirroredLibrary {
	t.Helper()

	snap, err := store.Snapshot()
	require.NoError(t, err)
	alt := snap.Alternative(altID)
	require.NotNil(t, alt)
	m := alt.Mirror(sourceID)
	require.NotNil(t, m)
	return *m
}

func TestEngine_CreatesPendingMirror(t *testing.T) {
	f, sourceID := newFixture(t)

	report, err := f.engine.ForceSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Empty(t, report.Errors)

	// The mirror directory holds one link per source root folder.
	link := filepath.Join(f.base, "Filmes", "movies")
	info, err := os.Lstat(link)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink)

	m := mirrorDecl(t, f.store, "pt-br", sourceID)
	assert.True(t, m.Active())
	assert.Equal(t, []string{"movies"}, m.LinkNames)

	// The mirror library is registered on the platform at the mirror path.
	libs, err := f.platform.ListLibraries(context.Background())
	require.NoError(t, err)
	require.Len(t, libs, 2)
}

func TestEngine_SecondSyncMakesNoCalls(t *testing.T) {
	f, _ := newFixture(t)

	_, err := f.engine.Sync(context.Background())
	require.NoError(t, err)

	f.platform.ResetCalls()
	report, err := f.engine.Sync(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Changed())
	assert.Zero(t, f.platform.TotalCalls(), "unchanged state must cost zero platform calls")
}

func TestEngine_SyncRunsAgainAfterStateChange(t *testing.T) {
	f, _ := newFixture(t)

	_, err := f.engine.Sync(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.store.Update(context.Background(), func(d *state.Document) error {
		d.Settings.AutoAssign = true
		return nil
	}))

	f.platform.ResetCalls()
	_, err = f.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.NotZero(t, f.platform.TotalCalls())
}

func TestEngine_ForceSyncRepairsDeletedLink(t *testing.T) {
	f, _ := newFixture(t)

	_, err := f.engine.ForceSync(context.Background())
	require.NoError(t, err)

	link := filepath.Join(f.base, "Filmes", "movies")
	require.NoError(t, os.Remove(link))

	report, err := f.engine.ForceSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)

	_, err = os.Lstat(link)
	assert.NoError(t, err)
}

func TestEngine_RemovedSourceFolderIsUnlinked(t *testing.T) {
	f, sourceID := newFixture(t)

	root := filepath.Dir(f.base)
	extra := filepath.Join(root, "movies-4k")
	require.NoError(t, os.MkdirAll(extra, 0o755))

	// Source grows a second root folder, then loses it again.
	libs, err := f.platform.ListLibraries(context.Background())
	require.NoError(t, err)
	f.platform.SetLibraryPaths(sourceID, append(libs[0].Paths, extra)...)

	_, err = f.engine.ForceSync(context.Background())
	require.NoError(t, err)
	m := mirrorDecl(t, f.store, "pt-br", sourceID)
	assert.Len(t, m.LinkNames, 2)

	f.platform.SetLibraryPaths(sourceID, libs[0].Paths...)
	_, err = f.engine.ForceSync(context.Background())
	require.NoError(t, err)

	m = mirrorDecl(t, f.store, "pt-br", sourceID)
	assert.Equal(t, []string{"movies"}, m.LinkNames)
	_, err = os.Lstat(filepath.Join(f.base, "Filmes", "movies-4k"))
	assert.True(t, os.IsNotExist(err))
}

func TestEngine_ForeignEntriesAreLeftAlone(t *testing.T) {
	f, sourceID := newFixture(t)

	_, err := f.engine.ForceSync(context.Background())
	require.NoError(t, err)

	// A user drops their own folder inside the mirror directory.
	foreign := filepath.Join(f.base, "Filmes", "extras")
	require.NoError(t, os.MkdirAll(foreign, 0o755))

	_, err = f.engine.ForceSync(context.Background())
	require.NoError(t, err)

	_, err = os.Stat(foreign)
	assert.NoError(t, err)
	m := mirrorDecl(t, f.store, "pt-br", sourceID)
	assert.Equal(t, []string{"movies"}, m.LinkNames, "foreign entries never become managed")
}

func TestEngine_MarksStaleWhenSourceGone(t *testing.T) {
	f, sourceID := newFixture(t)

	_, err := f.engine.ForceSync(context.Background())
	require.NoError(t, err)

	f.platform.RemoveLibraryByID(sourceID)

	report, err := f.engine.ForceSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stale)

	m := mirrorDecl(t, f.store, "pt-br", sourceID)
	assert.True(t, m.Stale)
	assert.False(t, m.Active())

	// Stale mirrors are kept, never auto-deleted.
	_, err = os.Stat(filepath.Join(f.base, "Filmes"))
	assert.NoError(t, err)
}

func TestEngine_ClearsStaleWhenSourceReturns(t *testing.T) {
	f, sourceID := newFixture(t)

	_, err := f.engine.ForceSync(context.Background())
	require.NoError(t, err)

	// A previous pass marked the mirror stale; the source is live again.
	require.NoError(t, f.store.Update(context.Background(), func(d *state.Document) error {
		d.Alternative("pt-br").Mirror(sourceID).Stale = true
		return nil
	}))

	_, err = f.engine.ForceSync(context.Background())
	require.NoError(t, err)

	m := mirrorDecl(t, f.store, "pt-br", sourceID)
	assert.False(t, m.Stale)
	assert.True(t, m.Active())
}

func TestEngine_FailureIsolation(t *testing.T) {
	f, _ := newFixture(t)

	// Second alternative whose base path cannot be created: a regular
	// file occupies a path component.
	root := t.TempDir()
	blocker := filepath.Join(root, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	require.NoError(t, f.store.Update(context.Background(), func(d *state.Document) error {
		if err := d.AddAlternative(state.LanguageAlternative{
			ID: "it", Name: "Italian", LanguageCode: "it",
			BasePath: filepath.Join(blocker, "mirrors"),
		}); err != nil {
			return err
		}
		libs, _ := f.platform.ListLibraries(context.Background())
		return d.AddMirror("it", state.MirroredLibrary{
			SourceID: libs[0].ID, SourceName: libs[0].Name, TargetName: "Film",
		})
	}))
	f.platform.ResetCalls()

	report, err := f.engine.ForceSync(context.Background())
	require.NoError(t, err, "per-mirror failures never abort the pass")
	assert.Equal(t, 1, report.Created, "healthy mirror still syncs")
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "it", report.Errors[0].AlternativeID)
}

func TestEngine_RetiredMirrorTeardown(t *testing.T) {
	f, sourceID := newFixture(t)

	_, err := f.engine.ForceSync(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.store.Update(context.Background(), func(d *state.Document) error {
		return d.RemoveMirror("pt-br", sourceID)
	}))

	report, err := f.engine.ForceSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)

	_, err = os.Stat(filepath.Join(f.base, "Filmes"))
	assert.True(t, os.IsNotExist(err))

	libs, err := f.platform.ListLibraries(context.Background())
	require.NoError(t, err)
	assert.Len(t, libs, 1, "mirror library retired from the platform")

	snap, err := f.store.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, snap.Retired)
}

func TestEngine_TeardownRetriesOnPlatformFailure(t *testing.T) {
	f, sourceID := newFixture(t)

	_, err := f.engine.ForceSync(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.store.Update(context.Background(), func(d *state.Document) error {
		return d.RemoveMirror("pt-br", sourceID)
	}))

	f.platform.Errs["RemoveLibrary"] = assert.AnError
	report, err := f.engine.ForceSync(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Removed)
	require.Len(t, report.Errors, 1)

	snap, err := f.store.Snapshot()
	require.NoError(t, err)
	assert.Len(t, snap.Retired, 1, "bookkeeping survives for the next pass")

	delete(f.platform.Errs, "RemoveLibrary")
	report, err = f.engine.ForceSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)
}

// declarationDeletingPlatform removes the mirror declaration while the
// library is being created, simulating an admin deleting it mid-pass.
type declarationDeletingPlatform struct {
	*mediaservertest.Fake
	store    *state.Store
	sourceID string
	once     sync.Once
}

func (p *declarationDeletingPlatform) CreateLibrary(ctx context.Context, name string, paths []string) (string, error) {
	var deleteErr error
	p.once.Do(func() {
		deleteErr = p.store.Update(ctx, func(d *state.Document) error {
			return d.RemoveMirror("pt-br", p.sourceID)
		})
	})
	if deleteErr != nil {
		return "", deleteErr
	}
	return p.Fake.CreateLibrary(ctx, name, paths)
}

func TestEngine_AbandonsPendingWhenDeclarationDeleted(t *testing.T) {
	f, sourceID := newFixture(t)

	platform := &declarationDeletingPlatform{Fake: f.platform, store: f.store, sourceID: sourceID}
	engine := NewEngine(f.store, platform)

	report, err := engine.ForceSync(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Created, "abandoned mirror never counts as created")
	assert.Empty(t, report.Errors)

	// The host library created for the vanished declaration is rolled back.
	libs, err := f.platform.ListLibraries(context.Background())
	require.NoError(t, err)
	assert.Len(t, libs, 1)

	_, err = os.Stat(filepath.Join(f.base, "Filmes"))
	assert.True(t, os.IsNotExist(err), "abandoned mirror directory removed")
}

func TestEngine_CancelledBetweenMirrors(t *testing.T) {
	f, _ := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.ForceSync(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
