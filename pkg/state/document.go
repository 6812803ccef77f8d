// Package state holds the desired-state document for language mirrors and
// user assignments, and the Store that owns the canonical copy of it.
//
// The document describes which language alternatives exist, which source
// libraries each alternative mirrors, which language is assigned to each
// user, and how LDAP groups map to alternatives. Every other component
// (resolver, mirror engine, access reconciler) works on disposable deep
// copies obtained from the Store and never holds a live reference to the
// canonical document.
package state

import (
	"path/filepath"
	"strings"
	"time"
)

// AssignmentSource records how a user's language assignment was produced.
type AssignmentSource string

const (
	// SourceManual marks an assignment set explicitly by an administrator.
	// Manual assignments are never overwritten by automatic resolution.
	SourceManual AssignmentSource = "manual"

	// SourceAuto marks an assignment produced by the default-language fallback.
	SourceAuto AssignmentSource = "auto"

	// SourceLDAP marks an assignment derived from LDAP group membership.
	SourceLDAP AssignmentSource = "ldap"
)

// LanguageAlternative is a configured target language with its own mirror
// base path and mirrored libraries.
type LanguageAlternative struct {
	// ID uniquely identifies the alternative within the document
	ID string `json:"id"`

	// Name is the human-readable display name (e.g. "Portuguese")
	Name string `json:"name"`

	// LanguageCode is the BCP-47-ish code: "pt" or "pt-BR"
	LanguageCode string `json:"language_code"`

	// MetadataLanguage is the two-letter metadata language, defaulted
	// from LanguageCode if empty
	MetadataLanguage string `json:"metadata_language,omitempty"`

	// MetadataCountry is the two-letter metadata country, defaulted
	// from LanguageCode if it carries a region
	MetadataCountry string `json:"metadata_country,omitempty"`

	// BasePath is the directory under which this alternative's mirror
	// trees are created
	BasePath string `json:"base_path"`

	// Libraries lists the mirrored libraries of this alternative,
	// in declaration order
	Libraries []MirroredLibrary `json:"libraries,omitempty"`
}

// MirroredLibrary declares that one source library is mirrored into its
// owning alternative. At most one declaration per (alternative, source id)
// pair exists.
type MirroredLibrary struct {
	// SourceID is the host-platform id of the mirrored source library
	SourceID string `json:"source_id"`

	// SourceName is a snapshot of the source library's name at declaration
	// time. It may drift from the live name; SourceID is authoritative.
	SourceName string `json:"source_name"`

	// TargetID is the host-platform id of the mirror library.
	// Empty until the mirror library has been created (pending state).
	TargetID string `json:"target_id,omitempty"`

	// TargetName is the display name for the mirror library
	// (e.g. "Filmes" for a "Movies" source). Defaults to SourceName.
	TargetName string `json:"target_name,omitempty"`

	// LinkNames records the names of the links the sync engine created
	// inside the mirror directory. The engine only ever removes links it
	// created; manual additions in the mirror directory are left alone.
	LinkNames []string `json:"link_names,omitempty"`

	// Stale marks a mirror whose source library no longer exists on the
	// host platform. Stale mirrors are kept until explicitly removed.
	Stale bool `json:"stale,omitempty"`
}

// Pending reports whether the mirror library has not been created on the
// host platform yet.
func (m *MirroredLibrary) Pending() bool {
	return m.TargetID == ""
}

// Active reports whether the mirror library exists on the host platform
// and is backed by a live source.
func (m *MirroredLibrary) Active() bool {
	return m.TargetID != "" && !m.Stale
}

// DisplayName returns the mirror library's display name, falling back to
// the source name when no localized name was configured.
func (m *MirroredLibrary) DisplayName() string {
	if m.TargetName != "" {
		return m.TargetName
	}
	return m.SourceName
}

// MirrorPath returns the destination directory of the given mirror under
// this alternative's base path.
func (a *LanguageAlternative) MirrorPath(m *MirroredLibrary) string {
	return filepath.Join(a.BasePath, m.DisplayName())
}

// Mirror returns the mirror declaration for the given source library id,
// or nil if the alternative does not mirror it.
func (a *LanguageAlternative) Mirror(sourceID string) *MirroredLibrary {
	for i := range a.Libraries {
		if a.Libraries[i].SourceID == sourceID {
			return &a.Libraries[i]
		}
	}
	return nil
}

// Normalize fills MetadataLanguage and MetadataCountry from LanguageCode
// when they are unset. "pt-BR" yields language "pt" and country "BR".
func (a *LanguageAlternative) Normalize() {
	lang, country, _ := strings.Cut(a.LanguageCode, "-")
	if a.MetadataLanguage == "" {
		a.MetadataLanguage = strings.ToLower(lang)
	}
	if a.MetadataCountry == "" && country != "" {
		a.MetadataCountry = strings.ToUpper(country)
	}
}

// UserLanguageAssignment maps a user to their effective language alternative.
type UserLanguageAssignment struct {
	// UserID is the host-platform user id
	UserID string `json:"user_id"`

	// AlternativeID is the effective alternative; empty means unassigned
	AlternativeID string `json:"alternative_id,omitempty"`

	// Source records how the assignment was produced
	Source AssignmentSource `json:"source"`

	// ManuallySet blocks automatic resolution from overwriting this record
	ManuallySet bool `json:"manually_set,omitempty"`

	// Managed marks records created by langmirror, distinguishing them
	// from records imported from elsewhere
	Managed bool `json:"managed,omitempty"`
}

// LdapGroupMapping maps an LDAP group to a language alternative.
//
// When a user belongs to several mapped groups, the mapping with the
// numerically largest priority wins; ties are broken by declaration order
// (earliest mapping wins).
type LdapGroupMapping struct {
	GroupDN       string `json:"group_dn"`
	AlternativeID string `json:"alternative_id"`
	Priority      int    `json:"priority"`
}

// RetiredMirror is bookkeeping for a mirror whose declaration was removed
// but whose on-disk directory and host-platform library entry still need
// tearing down. Entries survive restarts so cleanup is never lost.
type RetiredMirror struct {
	AlternativeID string `json:"alternative_id"`
	SourceID      string `json:"source_id"`
	TargetID      string `json:"target_id,omitempty"`
	Path          string `json:"path"`
}

// SyncSettings holds the document-level switches that drive automatic
// assignment resolution.
type SyncSettings struct {
	// LdapEnabled enables LDAP group lookups during resolution.
	// When false, no directory call is made at all.
	LdapEnabled bool `json:"ldap_enabled"`

	// AutoAssign enables falling back to DefaultAlternativeID for users
	// with no LDAP match
	AutoAssign bool `json:"auto_assign"`

	// DefaultAlternativeID is the fallback alternative; empty means
	// "no default" and leaves unmatched users unassigned
	DefaultAlternativeID string `json:"default_alternative_id,omitempty"`
}

// Document is the entire desired-state graph, persisted as a whole on
// every update.
type Document struct {
	// Version increments on every committed update
	Version uint64 `json:"version"`

	// UpdatedAt is the wall-clock time of the last committed update
	UpdatedAt time.Time `json:"updated_at"`

	Settings      SyncSettings             `json:"settings"`
	Alternatives  []LanguageAlternative    `json:"alternatives,omitempty"`
	Assignments   []UserLanguageAssignment `json:"assignments,omitempty"`
	GroupMappings []LdapGroupMapping       `json:"group_mappings,omitempty"`
	Retired       []RetiredMirror          `json:"retired,omitempty"`
}

// NewDocument returns an empty initialized document.
func NewDocument() *Document {
	return &Document{}
}

// Clone returns a disconnected deep copy of the document. Every slice is
// reallocated so no mutation of the copy can reach the original.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}

	out := &Document{
		Version:   d.Version,
		UpdatedAt: d.UpdatedAt,
		Settings:  d.Settings,
	}

	if d.Alternatives != nil {
		out.Alternatives = make([]LanguageAlternative, len(d.Alternatives))
		for i := range d.Alternatives {
			out.Alternatives[i] = d.Alternatives[i].clone()
		}
	}
	if d.Assignments != nil {
		out.Assignments = append([]UserLanguageAssignment(nil), d.Assignments...)
	}
	if d.GroupMappings != nil {
		out.GroupMappings = append([]LdapGroupMapping(nil), d.GroupMappings...)
	}
	if d.Retired != nil {
		out.Retired = append([]RetiredMirror(nil), d.Retired...)
	}

	return out
}

func (a LanguageAlternative) clone() LanguageAlternative {
	out := a
	if a.Libraries != nil {
		out.Libraries = make([]MirroredLibrary, len(a.Libraries))
		for i := range a.Libraries {
			out.Libraries[i] = a.Libraries[i]
			if a.Libraries[i].LinkNames != nil {
				out.Libraries[i].LinkNames = append([]string(nil), a.Libraries[i].LinkNames...)
			}
		}
	}
	return out
}

// Alternative returns a pointer to the alternative with the given id, or
// nil if it doesn't exist. The pointer aims into the receiver; callers
// mutating it must be inside a Store update.
func (d *Document) Alternative(id string) *LanguageAlternative {
	for i := range d.Alternatives {
		if d.Alternatives[i].ID == id {
			return &d.Alternatives[i]
		}
	}
	return nil
}

// Assignment returns a pointer to the assignment for the given user, or
// nil if none exists.
func (d *Document) Assignment(userID string) *UserLanguageAssignment {
	for i := range d.Assignments {
		if d.Assignments[i].UserID == userID {
			return &d.Assignments[i]
		}
	}
	return nil
}

// SetAssignment inserts or replaces the assignment for a.UserID.
func (d *Document) SetAssignment(a UserLanguageAssignment) {
	if existing := d.Assignment(a.UserID); existing != nil {
		*existing = a
		return
	}
	d.Assignments = append(d.Assignments, a)
}

// RemoveAssignment deletes the assignment for the given user.
// Returns true if a record was removed.
func (d *Document) RemoveAssignment(userID string) bool {
	for i := range d.Assignments {
		if d.Assignments[i].UserID == userID {
			d.Assignments = append(d.Assignments[:i], d.Assignments[i+1:]...)
			return true
		}
	}
	return false
}

// AddAlternative validates and appends a new language alternative.
func (d *Document) AddAlternative(a LanguageAlternative) error {
	if a.ID == "" {
		return &StateError{Code: ErrInvalidArgument, Message: "alternative id is required"}
	}
	if a.BasePath == "" || !filepath.IsAbs(a.BasePath) {
		return &StateError{Code: ErrInvalidArgument, Message: "alternative base path must be absolute", Key: a.ID}
	}
	if d.Alternative(a.ID) != nil {
		return &StateError{Code: ErrAlreadyExists, Message: "alternative already exists", Key: a.ID}
	}

	a.Normalize()
	d.Alternatives = append(d.Alternatives, a)
	return nil
}

// RemoveAlternative deletes an alternative, moves all its mirror
// declarations to the retired list for teardown, and clears every user
// assignment referencing it.
func (d *Document) RemoveAlternative(id string) error {
	idx := -1
	for i := range d.Alternatives {
		if d.Alternatives[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &StateError{Code: ErrNotFound, Message: "alternative not found", Key: id}
	}

	alt := &d.Alternatives[idx]
	for i := range alt.Libraries {
		d.retireMirror(alt, &alt.Libraries[i])
	}
	d.Alternatives = append(d.Alternatives[:idx], d.Alternatives[idx+1:]...)

	// Clear assignments pointing at the removed alternative.
	for i := range d.Assignments {
		if d.Assignments[i].AlternativeID == id {
			d.Assignments[i].AlternativeID = ""
		}
	}

	// Drop group mappings targeting it; they can never match again.
	mappings := d.GroupMappings[:0]
	for _, m := range d.GroupMappings {
		if m.AlternativeID != id {
			mappings = append(mappings, m)
		}
	}
	d.GroupMappings = mappings

	if d.Settings.DefaultAlternativeID == id {
		d.Settings.DefaultAlternativeID = ""
	}

	return nil
}

// AddMirror declares a mirror of the given source library under an
// alternative. At most one declaration per (alternative, source) pair.
func (d *Document) AddMirror(alternativeID string, m MirroredLibrary) error {
	alt := d.Alternative(alternativeID)
	if alt == nil {
		return &StateError{Code: ErrNotFound, Message: "alternative not found", Key: alternativeID}
	}
	if m.SourceID == "" {
		return &StateError{Code: ErrInvalidArgument, Message: "mirror source id is required", Key: alternativeID}
	}
	if alt.Mirror(m.SourceID) != nil {
		return &StateError{Code: ErrAlreadyExists, Message: "source library already mirrored", Key: m.SourceID}
	}

	alt.Libraries = append(alt.Libraries, m)
	return nil
}

// RemoveMirror deletes a mirror declaration and queues its teardown.
func (d *Document) RemoveMirror(alternativeID, sourceID string) error {
	alt := d.Alternative(alternativeID)
	if alt == nil {
		return &StateError{Code: ErrNotFound, Message: "alternative not found", Key: alternativeID}
	}

	for i := range alt.Libraries {
		if alt.Libraries[i].SourceID == sourceID {
			d.retireMirror(alt, &alt.Libraries[i])
			alt.Libraries = append(alt.Libraries[:i], alt.Libraries[i+1:]...)
			return nil
		}
	}

	return &StateError{Code: ErrNotFound, Message: "mirror not found", Key: sourceID}
}

func (d *Document) retireMirror(alt *LanguageAlternative, m *MirroredLibrary) {
	d.Retired = append(d.Retired, RetiredMirror{
		AlternativeID: alt.ID,
		SourceID:      m.SourceID,
		TargetID:      m.TargetID,
		Path:          alt.MirrorPath(m),
	})
}
