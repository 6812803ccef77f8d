package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer is a minimal in-memory Jellyfin-style API for client tests.
type fakeServer struct {
	t        *testing.T
	version  string
	folders  []virtualFolder
	policies map[string]map[string]any

	// lastPolicy captures the body of the most recent policy update.
	lastPolicy map[string]any
}

func newFakeServer(t *testing.T, version string) (*fakeServer, *httptest.Server) {
	fs := &fakeServer{
		t:        t,
		version:  version,
		policies: make(map[string]map[string]any),
	}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)
	return fs, srv
}

func (fs *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/System/Info/Public":
		json.NewEncoder(w).Encode(map[string]string{"Version": fs.version})

	case r.URL.Path == "/Library/VirtualFolders" && r.Method == http.MethodGet:
		fs.requireAuth(r)
		json.NewEncoder(w).Encode(fs.folders)

	case r.URL.Path == "/Library/VirtualFolders" && r.Method == http.MethodPost:
		fs.requireAuth(r)
		fs.folders = append(fs.folders, virtualFolder{
			Name:   r.URL.Query().Get("name"),
			ItemID: "id-" + r.URL.Query().Get("name"),
		})
		w.WriteHeader(http.StatusNoContent)

	case r.URL.Path == "/Library/VirtualFolders" && r.Method == http.MethodDelete:
		fs.requireAuth(r)
		name := r.URL.Query().Get("name")
		kept := fs.folders[:0]
		for _, f := range fs.folders {
			if f.Name != name {
				kept = append(kept, f)
			}
		}
		fs.folders = kept
		w.WriteHeader(http.StatusNoContent)

	case r.URL.Path == "/Users" && r.Method == http.MethodGet:
		fs.requireAuth(r)
		users := make([]map[string]any, 0, len(fs.policies))
		for id, policy := range fs.policies {
			users = append(users, map[string]any{"Id": id, "Name": "user-" + id, "Policy": policy})
		}
		json.NewEncoder(w).Encode(users)

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/Users/"):
		fs.requireAuth(r)
		id := strings.TrimPrefix(r.URL.Path, "/Users/")
		policy, ok := fs.policies[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"Id": id, "Name": "user-" + id, "Policy": policy})

	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/Policy"):
		fs.requireAuth(r)
		var policy map[string]any
		require.NoError(fs.t, json.NewDecoder(r.Body).Decode(&policy))
		fs.lastPolicy = policy
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (fs *fakeServer) requireAuth(r *http.Request) {
	require.Equal(fs.t, "test-key", r.Header.Get("X-Emby-Token"))
}

func newTestClient(t *testing.T, srv *httptest.Server, forceVersion string) *Client {
	client, err := New(context.Background(), Config{
		URL:          srv.URL,
		APIKey:       "test-key",
		ForceVersion: forceVersion,
	})
	require.NoError(t, err)
	return client
}

func TestNew_ProbesVersion(t *testing.T) {
	_, srv := newFakeServer(t, "10.10.1")
	client := newTestClient(t, srv, "")
	assert.Equal(t, "libraries-v2", client.codec.name())
}

func TestNew_ForceVersionSkipsProbe(t *testing.T) {
	fs, srv := newFakeServer(t, "10.10.1")
	fs.version = "" // probe would fail
	client := newTestClient(t, srv, "10.8")
	assert.Equal(t, "folders-v1", client.codec.name())
}

func TestNew_RequiresURLAndKey(t *testing.T) {
	_, err := New(context.Background(), Config{APIKey: "k"})
	assert.Error(t, err)
	_, err = New(context.Background(), Config{URL: "http://localhost:8096"})
	assert.Error(t, err)
}

func TestListLibraries(t *testing.T) {
	fs, srv := newFakeServer(t, "10.9.0")
	fs.folders = []virtualFolder{
		{Name: "Movies", ItemID: "lib-1", Locations: []string{"/media/movies"}},
	}
	client := newTestClient(t, srv, "")

	libs, err := client.ListLibraries(context.Background())
	require.NoError(t, err)
	require.Len(t, libs, 1)
	assert.Equal(t, "lib-1", libs[0].ID)
	assert.Equal(t, "Movies", libs[0].Name)
	assert.Equal(t, []string{"/media/movies"}, libs[0].Paths)
}

func TestCreateLibrary_ResolvesIDByName(t *testing.T) {
	_, srv := newFakeServer(t, "10.9.0")
	client := newTestClient(t, srv, "")

	id, err := client.CreateLibrary(context.Background(), "Filmes", []string{"/media/mirrors/pt-br/Filmes"})
	require.NoError(t, err)
	assert.Equal(t, "id-Filmes", id)
}

func TestRemoveLibrary_ByID(t *testing.T) {
	fs, srv := newFakeServer(t, "10.9.0")
	fs.folders = []virtualFolder{{Name: "Filmes", ItemID: "lib-9"}}
	client := newTestClient(t, srv, "")

	require.NoError(t, client.RemoveLibrary(context.Background(), "lib-9"))
	assert.Empty(t, fs.folders)

	assert.Error(t, client.RemoveLibrary(context.Background(), "lib-9"))
}

func TestUserLibraryPermissions(t *testing.T) {
	fs, srv := newFakeServer(t, "10.9.0")
	fs.policies["u1"] = map[string]any{
		"EnableAllLibraries": true,
		"EnabledLibraries":   []string{"lib-1"},
	}
	client := newTestClient(t, srv, "")

	ids, allAccess, err := client.UserLibraryPermissions(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, allAccess)
	assert.Equal(t, []string{"lib-1"}, ids)
}

func TestSetUserLibraryPermissions_PreservesPolicyFields(t *testing.T) {
	fs, srv := newFakeServer(t, "10.9.0")
	fs.policies["u1"] = map[string]any{
		"IsAdministrator":    true,
		"EnableAllLibraries": true,
		"EnabledLibraries":   []string{"old"},
	}
	client := newTestClient(t, srv, "")

	require.NoError(t, client.SetUserLibraryPermissions(context.Background(), "u1", []string{"lib-2", "lib-3"}))

	require.NotNil(t, fs.lastPolicy)
	assert.Equal(t, true, fs.lastPolicy["IsAdministrator"])
	assert.Equal(t, false, fs.lastPolicy["EnableAllLibraries"])
	assert.Equal(t, []any{"lib-2", "lib-3"}, fs.lastPolicy["EnabledLibraries"])
}

func TestListUsers(t *testing.T) {
	fs, srv := newFakeServer(t, "10.9.0")
	fs.policies["u1"] = map[string]any{}
	client := newTestClient(t, srv, "")

	users, err := client.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "u1", users[0].ID)
	assert.Equal(t, "user-u1", users[0].Name)
}
