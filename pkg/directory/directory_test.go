package directory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabled_AlwaysFails(t *testing.T) {
	_, err := Disabled{}.UserGroups(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestStatic_UserGroups(t *testing.T) {
	svc := NewStatic(map[string][]string{
		"alice": {"cn=brazil,ou=groups,dc=example,dc=org"},
	})

	groups, err := svc.UserGroups(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"cn=brazil,ou=groups,dc=example,dc=org"}, groups)

	// Unknown users are empty, not errors.
	groups, err = svc.UserGroups(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestStatic_CopiesInput(t *testing.T) {
	source := map[string][]string{"alice": {"cn=brazil"}}
	svc := NewStatic(source)
	source["alice"][0] = "tampered"

	groups, err := svc.UserGroups(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"cn=brazil"}, groups)
}

func TestStatic_Replace(t *testing.T) {
	svc := NewStatic(map[string][]string{"alice": {"cn=brazil"}})
	svc.Replace(map[string][]string{"bob": {"cn=italy"}})

	groups, err := svc.UserGroups(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, groups)

	groups, err = svc.UserGroups(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"cn=italy"}, groups)
}

func TestLoadStatic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "membership.yaml")
	content := `users:
  alice:
    - cn=brazil,ou=groups,dc=example,dc=org
    - cn=staff,ou=groups,dc=example,dc=org
  bob: []
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	svc, err := LoadStatic(path)
	require.NoError(t, err)

	groups, err := svc.UserGroups(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, groups, 2)
}

func TestLoadStatic_MissingFile(t *testing.T) {
	_, err := LoadStatic(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
