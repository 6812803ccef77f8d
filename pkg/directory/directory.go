// Package directory abstracts the group-membership lookups used by
// automatic language resolution.
//
// The resolver only ever asks one question: which groups does this user
// belong to. Deployments back it with an LDAP-synced membership file
// (Static); when LDAP is off the Disabled service answers ErrDisabled
// and the resolver falls back to the default alternative.
package directory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrDisabled is returned by a Service that has been switched off.
var ErrDisabled = errors.New("directory service is disabled")

// Service answers group-membership queries for media server users.
//
// Implementations must be safe for concurrent use.
type Service interface {
	// UserGroups returns the distinguished names of the groups the named
	// user belongs to. A user unknown to the directory yields an empty
	// slice, not an error.
	UserGroups(ctx context.Context, username string) ([]string, error)
}

// Disabled is the Service used when LDAP integration is turned off.
// Every lookup fails with ErrDisabled.
type Disabled struct{}

// UserGroups implements Service.
func (Disabled) UserGroups(ctx context.Context, username string) ([]string, error) {
	return nil, ErrDisabled
}

// Static serves memberships from an in-memory table, typically loaded
// from a membership file kept in sync by an external LDAP export job.
type Static struct {
	mu     sync.RWMutex
	groups map[string][]string
}

// NewStatic creates a Static service from a username-to-groups table.
func NewStatic(groups map[string][]string) *Static {
	copied := make(map[string][]string, len(groups))
	for user, dns := range groups {
		copied[user] = append([]string(nil), dns...)
	}
	return &Static{groups: copied}
}

// membershipFile is the YAML shape of an exported membership table.
type membershipFile struct {
	Users map[string][]string `yaml:"users"`
}

// LoadStatic reads a YAML membership file:
//
//	users:
//	  alice:
//	    - cn=brazil,ou=groups,dc=example,dc=org
//	  bob:
//	    - cn=italy,ou=groups,dc=example,dc=org
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read membership file: %w", err)
	}

	var file membershipFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse membership file %s: %w", path, err)
	}

	return NewStatic(file.Users), nil
}

// UserGroups implements Service.
func (s *Static) UserGroups(ctx context.Context, username string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.groups[username]...), nil
}

// Replace swaps the entire membership table, used when the export file
// is reloaded.
func (s *Static) Replace(groups map[string][]string) {
	copied := make(map[string][]string, len(groups))
	for user, dns := range groups {
		copied[user] = append([]string(nil), dns...)
	}

	s.mu.Lock()
	s.groups = copied
	s.mu.Unlock()
}

var (
	_ Service = Disabled{}
	_ Service = (*Static)(nil)
)
