// Package mediaservertest provides an in-memory mediaserver.Client fake
// for tests. It tracks call counts so tests can assert that idempotent
// passes make no platform calls, and supports per-method error injection
// for failure-isolation tests.
package mediaservertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/marmos91/langmirror/pkg/mediaserver"
)

// Fake is an in-memory media server.
//
// Thread safety: all methods are safe for concurrent use.
type Fake struct {
	mu sync.Mutex

	libraries   []mediaserver.Library
	users       []mediaserver.User
	permissions map[string][]string
	allAccess   map[string]bool

	nextID int

	// Calls counts every API call by method name.
	Calls map[string]int

	// Errs injects an error for a method name; the call fails until the
	// entry is removed.
	Errs map[string]error
}

// New creates an empty fake.
func New() *Fake {
	return &Fake{
		permissions: make(map[string][]string),
		allAccess:   make(map[string]bool),
		Calls:       make(map[string]int),
		Errs:        make(map[string]error),
	}
}

// AddLibrary registers a library and returns its generated id.
func (f *Fake) AddLibrary(name string, paths ...string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := fmt.Sprintf("lib-%d", f.nextID)
	f.libraries = append(f.libraries, mediaserver.Library{ID: id, Name: name, Paths: paths})
	return id
}

// RemoveLibraryByID drops a library without counting as an API call,
// simulating out-of-band removal on the server.
func (f *Fake) RemoveLibraryByID(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLibraryLocked(id)
}

func (f *Fake) removeLibraryLocked(id string) {
	for i := range f.libraries {
		if f.libraries[i].ID == id {
			f.libraries = append(f.libraries[:i], f.libraries[i+1:]...)
			return
		}
	}
}

// SetLibraryPaths rewrites a library's root folders without counting as
// an API call, simulating an out-of-band folder change on the server.
func (f *Fake) SetLibraryPaths(id string, paths ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.libraries {
		if f.libraries[i].ID == id {
			f.libraries[i].Paths = append([]string(nil), paths...)
			return
		}
	}
}

// AddUser registers a user account.
func (f *Fake) AddUser(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, mediaserver.User{ID: id, Name: name})
}

// SetPermissions seeds a user's current permission record.
func (f *Fake) SetPermissions(userID string, libraryIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.permissions[userID] = append([]string(nil), libraryIDs...)
}

// Permissions returns a copy of the user's current permission record.
func (f *Fake) Permissions(userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.permissions[userID]...)
}

// TotalCalls returns the number of API calls across all methods.
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	total := 0
	for _, n := range f.Calls {
		total += n
	}
	return total
}

// ResetCalls clears the call counters.
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = make(map[string]int)
}

func (f *Fake) record(method string) error {
	f.Calls[method]++
	if err := f.Errs[method]; err != nil {
		return err
	}
	return nil
}

// ListLibraries implements mediaserver.Client.
func (f *Fake) ListLibraries(ctx context.Context) ([]mediaserver.Library, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("ListLibraries"); err != nil {
		return nil, err
	}
	out := make([]mediaserver.Library, len(f.libraries))
	copy(out, f.libraries)
	return out, nil
}

// CreateLibrary implements mediaserver.Client.
func (f *Fake) CreateLibrary(ctx context.Context, name string, paths []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("CreateLibrary"); err != nil {
		return "", err
	}

	f.nextID++
	id := fmt.Sprintf("lib-%d", f.nextID)
	f.libraries = append(f.libraries, mediaserver.Library{ID: id, Name: name, Paths: append([]string(nil), paths...)})
	return id, nil
}

// RemoveLibrary implements mediaserver.Client.
func (f *Fake) RemoveLibrary(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("RemoveLibrary"); err != nil {
		return err
	}
	f.removeLibraryLocked(id)
	return nil
}

// ListUsers implements mediaserver.Client.
func (f *Fake) ListUsers(ctx context.Context) ([]mediaserver.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("ListUsers"); err != nil {
		return nil, err
	}
	out := make([]mediaserver.User, len(f.users))
	copy(out, f.users)
	return out, nil
}

// UserLibraryPermissions implements mediaserver.Client.
func (f *Fake) UserLibraryPermissions(ctx context.Context, userID string) ([]string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("UserLibraryPermissions"); err != nil {
		return nil, false, err
	}
	return append([]string(nil), f.permissions[userID]...), f.allAccess[userID], nil
}

// SetUserLibraryPermissions implements mediaserver.Client.
func (f *Fake) SetUserLibraryPermissions(ctx context.Context, userID string, libraryIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("SetUserLibraryPermissions"); err != nil {
		return err
	}
	f.permissions[userID] = append([]string(nil), libraryIDs...)
	f.allAccess[userID] = false
	return nil
}

var _ mediaserver.Client = (*Fake)(nil)
