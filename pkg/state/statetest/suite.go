// Package statetest provides a reusable test suite for state.Persistence
// implementations. It tests the interface contract, not implementation
// details, so every backend (memory, file, badger, s3) runs the same
// checks.
package statetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/langmirror/pkg/state"
)

// Suite is the persistence-backend test suite.
type Suite struct {
	// NewPersistence creates a fresh backend for each test.
	// Implementations should use t.TempDir or equivalent for isolation.
	NewPersistence func(t *testing.T) state.Persistence
}

// Run executes all tests in the suite.
func (suite *Suite) Run(test *testing.T) {
	test.Run("LoadEmpty_NotFound", suite.TestLoadEmpty_NotFound)
	test.Run("SaveThenLoad_RoundTrip", suite.TestSaveThenLoad_RoundTrip)
	test.Run("Save_ReplacesPrevious", suite.TestSave_ReplacesPrevious)
	test.Run("Load_ReturnsDisconnectedCopy", suite.TestLoad_ReturnsDisconnectedCopy)
}

// sampleDocument builds a document exercising every entity type.
func sampleDocument() *state.Document {
	return &state.Document{
		Version: 7,
		Settings: state.SyncSettings{
			LdapEnabled:          true,
			AutoAssign:           true,
			DefaultAlternativeID: "pt-br",
		},
		Alternatives: []state.LanguageAlternative{
			{
				ID:           "pt-br",
				Name:         "Portuguese",
				LanguageCode: "pt-BR",
				BasePath:     "/srv/mirrors/pt-br",
				Libraries: []state.MirroredLibrary{
					{
						SourceID:   "lib-movies",
						SourceName: "Movies",
						TargetID:   "lib-filmes",
						TargetName: "Filmes",
						LinkNames:  []string{"Action", "Drama"},
					},
				},
			},
		},
		Assignments: []state.UserLanguageAssignment{
			{UserID: "user-a", AlternativeID: "pt-br", Source: state.SourceLDAP, Managed: true},
			{UserID: "user-b", AlternativeID: "pt-br", Source: state.SourceManual, ManuallySet: true},
		},
		GroupMappings: []state.LdapGroupMapping{
			{GroupDN: "cn=brazil,ou=groups,dc=example,dc=org", AlternativeID: "pt-br", Priority: 100},
		},
		Retired: []state.RetiredMirror{
			{AlternativeID: "it", SourceID: "lib-shows", TargetID: "lib-serie", Path: "/srv/mirrors/it/Serie"},
		},
	}
}

// TestLoadEmpty_NotFound verifies a fresh backend reports ErrNotFound.
func (suite *Suite) TestLoadEmpty_NotFound(test *testing.T) {
	persistence := suite.NewPersistence(test)
	defer persistence.Close()

	_, err := persistence.Load(context.Background())
	require.Error(test, err)
	assert.True(test, state.IsCode(err, state.ErrNotFound), "expected ErrNotFound, got %v", err)
}

// TestSaveThenLoad_RoundTrip verifies the whole document graph survives
// a save/load cycle.
func (suite *Suite) TestSaveThenLoad_RoundTrip(test *testing.T) {
	persistence := suite.NewPersistence(test)
	defer persistence.Close()
	ctx := context.Background()

	saved := sampleDocument()
	require.NoError(test, persistence.Save(ctx, saved))

	loaded, err := persistence.Load(ctx)
	require.NoError(test, err)

	assert.Equal(test, saved.Version, loaded.Version)
	assert.Equal(test, saved.Settings, loaded.Settings)
	assert.Equal(test, saved.Alternatives, loaded.Alternatives)
	assert.Equal(test, saved.Assignments, loaded.Assignments)
	assert.Equal(test, saved.GroupMappings, loaded.GroupMappings)
	assert.Equal(test, saved.Retired, loaded.Retired)
}

// TestSave_ReplacesPrevious verifies the backend keeps exactly one document.
func (suite *Suite) TestSave_ReplacesPrevious(test *testing.T) {
	persistence := suite.NewPersistence(test)
	defer persistence.Close()
	ctx := context.Background()

	first := sampleDocument()
	require.NoError(test, persistence.Save(ctx, first))

	second := sampleDocument()
	second.Version = 8
	second.Assignments = nil
	require.NoError(test, persistence.Save(ctx, second))

	loaded, err := persistence.Load(ctx)
	require.NoError(test, err)
	assert.Equal(test, uint64(8), loaded.Version)
	assert.Empty(test, loaded.Assignments)
}

// TestLoad_ReturnsDisconnectedCopy verifies mutating a loaded document
// never leaks back into the backend.
func (suite *Suite) TestLoad_ReturnsDisconnectedCopy(test *testing.T) {
	persistence := suite.NewPersistence(test)
	defer persistence.Close()
	ctx := context.Background()

	require.NoError(test, persistence.Save(ctx, sampleDocument()))

	first, err := persistence.Load(ctx)
	require.NoError(test, err)
	first.Alternatives[0].Libraries[0].TargetID = "tampered"
	first.Settings.DefaultAlternativeID = "tampered"

	second, err := persistence.Load(ctx)
	require.NoError(test, err)
	assert.Equal(test, "lib-filmes", second.Alternatives[0].Libraries[0].TargetID)
	assert.Equal(test, "pt-br", second.Settings.DefaultAlternativeID)
}
