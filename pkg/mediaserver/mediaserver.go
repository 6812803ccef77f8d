// Package mediaserver defines the boundary to the host media server.
//
// langmirror never touches the media server's database; everything goes
// through this interface. The rest subpackage implements it against the
// server's REST management API; tests use the fake in mediaservertest.
package mediaserver

import "context"

// Library is a media library as reported by the host platform.
type Library struct {
	// ID is the platform's library identifier
	ID string

	// Name is the library's display name
	Name string

	// Paths are the library's root folders on disk
	Paths []string
}

// User is a media server account.
type User struct {
	// ID is the platform's user identifier
	ID string

	// Name is the login/display name, used for directory lookups
	Name string
}

// Client is the host-platform management API consumed by langmirror.
//
// All calls take a context; timeouts are the caller's responsibility.
// Implementations must be safe for concurrent use.
type Client interface {
	// ListLibraries returns all libraries registered on the server.
	ListLibraries(ctx context.Context) ([]Library, error)

	// CreateLibrary registers a new library rooted at the given paths
	// and returns its id.
	CreateLibrary(ctx context.Context, name string, paths []string) (string, error)

	// RemoveLibrary retires a library entry. The underlying files are
	// not touched.
	RemoveLibrary(ctx context.Context, id string) error

	// ListUsers returns all user accounts.
	ListUsers(ctx context.Context) ([]User, error)

	// UserLibraryPermissions returns the ids of the libraries the user
	// is currently allowed to see. An empty slice with allAccess true
	// means the user bypasses per-library permissions entirely.
	UserLibraryPermissions(ctx context.Context, userID string) (ids []string, allAccess bool, err error)

	// SetUserLibraryPermissions installs the full visible-library set
	// for a user in one call, clearing any all-access bypass.
	SetUserLibraryPermissions(ctx context.Context, userID string, libraryIDs []string) error
}
