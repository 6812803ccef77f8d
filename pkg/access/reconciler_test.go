package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/langmirror/pkg/mediaserver/mediaservertest"
	"github.com/marmos91/langmirror/pkg/state"
	"github.com/marmos91/langmirror/pkg/state/memory"
)

// scenario builds the reference topology: source "Movies" actively
// mirrored to "Filmes" under alternative pt-br, "Music" unmirrored.
// User A is assigned pt-br, user B is unassigned.
type scenario struct {
	store    *state.Store
	platform *mediaservertest.Fake

	movies string
	music  string
	filmes string
}

func newScenario(t *testing.T) *scenario {
	t.Helper()

	platform := mediaservertest.New()
	s := &scenario{platform: platform}
	s.movies = platform.AddLibrary("Movies", "/media/movies")
	s.music = platform.AddLibrary("Music", "/media/music")
	s.filmes = platform.AddLibrary("Filmes", "/srv/mirrors/pt-br/Filmes")
	platform.AddUser("user-a", "alice")
	platform.AddUser("user-b", "bob")

	s.store = state.NewStore(memory.New())
	require.NoError(t, s.store.Open(context.Background()))
	require.NoError(t, s.store.Update(context.Background(), func(d *state.Document) error {
		if err := d.AddAlternative(state.LanguageAlternative{
			ID: "pt-br", Name: "Portuguese", LanguageCode: "pt-BR", BasePath: "/srv/mirrors/pt-br",
		}); err != nil {
			return err
		}
		if err := d.AddMirror("pt-br", state.MirroredLibrary{
			SourceID: s.movies, SourceName: "Movies", TargetID: s.filmes, TargetName: "Filmes",
		}); err != nil {
			return err
		}
		d.SetAssignment(state.UserLanguageAssignment{
			UserID: "user-a", AlternativeID: "pt-br", Source: state.SourceManual,
		})
		return nil
	}))

	return s
}

func TestExpectedLibraryAccess_AssignedUser(t *testing.T) {
	s := newScenario(t)
	r := NewReconciler(s.store, s.platform)

	expected, err := r.ExpectedLibraryAccess(context.Background(), "user-a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{s.filmes, s.music}, expected,
		"mirror target and unmirrored library visible, mirrored source hidden")
}

func TestExpectedLibraryAccess_UnassignedUserIsEmpty(t *testing.T) {
	s := newScenario(t)
	r := NewReconciler(s.store, s.platform)

	expected, err := r.ExpectedLibraryAccess(context.Background(), "user-b")
	require.NoError(t, err)
	assert.Empty(t, expected)
}

func TestExpectedLibraryAccess_PendingMirrorKeepsSourceVisible(t *testing.T) {
	s := newScenario(t)
	require.NoError(t, s.store.Update(context.Background(), func(d *state.Document) error {
		d.Alternative("pt-br").Mirror(s.movies).TargetID = ""
		return nil
	}))
	r := NewReconciler(s.store, s.platform)

	expected, err := r.ExpectedLibraryAccess(context.Background(), "user-a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{s.movies, s.music, s.filmes}, expected)
}

func TestExpectedLibraryAccess_StaleMirrorKeepsSourceVisible(t *testing.T) {
	s := newScenario(t)
	require.NoError(t, s.store.Update(context.Background(), func(d *state.Document) error {
		d.Alternative("pt-br").Mirror(s.movies).Stale = true
		return nil
	}))
	r := NewReconciler(s.store, s.platform)

	expected, err := r.ExpectedLibraryAccess(context.Background(), "user-a")
	require.NoError(t, err)
	assert.Contains(t, expected, s.movies)
	assert.NotContains(t, expected, s.filmes, "stale mirror target hidden")
}

func TestExpectedLibraryAccess_OtherAlternativesMirrorIsHidden(t *testing.T) {
	s := newScenario(t)
	serie := s.platform.AddLibrary("Serie", "/srv/mirrors/it/Serie")
	shows := s.platform.AddLibrary("Shows", "/media/shows")
	require.NoError(t, s.store.Update(context.Background(), func(d *state.Document) error {
		if err := d.AddAlternative(state.LanguageAlternative{
			ID: "it", Name: "Italian", LanguageCode: "it", BasePath: "/srv/mirrors/it",
		}); err != nil {
			return err
		}
		return d.AddMirror("it", state.MirroredLibrary{
			SourceID: shows, SourceName: "Shows", TargetID: serie, TargetName: "Serie",
		})
	}))
	r := NewReconciler(s.store, s.platform)

	expected, err := r.ExpectedLibraryAccess(context.Background(), "user-a")
	require.NoError(t, err)
	assert.NotContains(t, expected, serie, "another alternative's mirror")
	assert.NotContains(t, expected, shows, "source mirrored by another alternative")
	assert.Contains(t, expected, s.filmes)
}

func TestReconcileUser_CorrectsDrift(t *testing.T) {
	s := newScenario(t)
	s.platform.SetPermissions("user-a", s.movies, s.music)
	r := NewReconciler(s.store, s.platform)

	result, err := r.ReconcileUser(context.Background(), "user-a")
	require.NoError(t, err)
	assert.True(t, result.Managed)
	assert.True(t, result.Updated)
	assert.Equal(t, []string{s.filmes}, result.Granted)
	assert.Equal(t, []string{s.movies}, result.Revoked)

	// The full expected set was installed in one write.
	assert.Equal(t, 1, s.platform.Calls["SetUserLibraryPermissions"])
	assert.ElementsMatch(t, []string{s.filmes, s.music}, s.platform.Permissions("user-a"))
}

func TestReconcileUser_NoDriftMakesNoWrite(t *testing.T) {
	s := newScenario(t)
	s.platform.SetPermissions("user-a", s.filmes, s.music)
	r := NewReconciler(s.store, s.platform)

	result, err := r.ReconcileUser(context.Background(), "user-a")
	require.NoError(t, err)
	assert.True(t, result.Managed)
	assert.False(t, result.Updated)
	assert.Zero(t, s.platform.Calls["SetUserLibraryPermissions"])
}

func TestReconcileUser_UnmanagedUserIsUntouched(t *testing.T) {
	s := newScenario(t)
	s.platform.SetPermissions("user-b", s.movies)
	r := NewReconciler(s.store, s.platform)

	result, err := r.ReconcileUser(context.Background(), "user-b")
	require.NoError(t, err)
	assert.False(t, result.Managed)
	assert.False(t, result.Updated)
	assert.Zero(t, s.platform.Calls["SetUserLibraryPermissions"])
	assert.Equal(t, []string{s.movies}, s.platform.Permissions("user-b"))
}

func TestReconcileAll_FailureIsolation(t *testing.T) {
	s := newScenario(t)
	require.NoError(t, s.store.Update(context.Background(), func(d *state.Document) error {
		d.SetAssignment(state.UserLanguageAssignment{
			UserID: "user-b", AlternativeID: "pt-br", Source: state.SourceAuto,
		})
		return nil
	}))
	s.platform.Errs["SetUserLibraryPermissions"] = assert.AnError

	r := NewReconciler(s.store, s.platform)
	results, err := r.ReconcileAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 2")
	assert.Empty(t, results)

	// Writes were attempted for both users despite the first failure.
	assert.Equal(t, 2, s.platform.Calls["SetUserLibraryPermissions"])
}

func TestReconcileAll_MixedUsers(t *testing.T) {
	s := newScenario(t)
	r := NewReconciler(s.store, s.platform)

	results, err := r.ReconcileAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Managed)
	assert.False(t, results[1].Managed)
}
