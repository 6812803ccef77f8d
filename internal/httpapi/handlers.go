package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/marmos91/langmirror/pkg/access"
	"github.com/marmos91/langmirror/pkg/assign"
	"github.com/marmos91/langmirror/pkg/daemon"
	"github.com/marmos91/langmirror/pkg/state"
)

// handler bundles the components the API operates on.
type handler struct {
	store      *state.Store
	daemon     *daemon.Daemon
	resolver   *assign.Resolver
	reconciler *access.Reconciler
}

// status handles GET /api/v1/status.
func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.Snapshot()
	if err != nil {
		failFromError(w, err)
		return
	}

	ok(w, map[string]any{
		"state_version": snap.Version,
		"updated_at":    snap.UpdatedAt,
		"alternatives":  len(snap.Alternatives),
		"assignments":   len(snap.Assignments),
		"retired":       len(snap.Retired),
		"last_pass":     h.daemon.LastPass(),
	})
}

// sync handles POST /api/v1/sync: runs a full pass synchronously and
// returns its report.
func (h *handler) sync(w http.ResponseWriter, r *http.Request) {
	report, err := h.daemon.RunPass(r.Context())
	if err != nil {
		failFromError(w, err)
		return
	}
	ok(w, report)
}

// UserEventRequest is the request body for POST /api/v1/events/users.
type UserEventRequest struct {
	Event  string `json:"event"` // "created" or "deleted"
	UserID string `json:"user_id"`
}

// userEvent handles the media server's user lifecycle webhook.
func (h *handler) userEvent(w http.ResponseWriter, r *http.Request) {
	var req UserEventRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		badRequest(w, "user_id is required")
		return
	}

	var err error
	switch req.Event {
	case "created":
		err = h.daemon.OnUserCreated(r.Context(), req.UserID)
	case "deleted":
		err = h.daemon.OnUserDeleted(r.Context(), req.UserID)
	default:
		badRequest(w, "event must be \"created\" or \"deleted\"")
		return
	}
	if err != nil {
		failFromError(w, err)
		return
	}
	ok(w, nil)
}

// listAlternatives handles GET /api/v1/alternatives.
func (h *handler) listAlternatives(w http.ResponseWriter, r *http.Request) {
	alts, err := state.Read(h.store, func(d *state.Document) []state.LanguageAlternative {
		return d.Alternatives
	})
	if err != nil {
		failFromError(w, err)
		return
	}
	ok(w, alts)
}

// CreateAlternativeRequest is the request body for POST /api/v1/alternatives.
type CreateAlternativeRequest struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	LanguageCode string `json:"language_code"`
	BasePath     string `json:"base_path"`
}

// createAlternative handles POST /api/v1/alternatives.
func (h *handler) createAlternative(w http.ResponseWriter, r *http.Request) {
	var req CreateAlternativeRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.LanguageCode == "" {
		badRequest(w, "language_code is required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	alt := state.LanguageAlternative{
		ID:           req.ID,
		Name:         req.Name,
		LanguageCode: req.LanguageCode,
		BasePath:     req.BasePath,
	}
	err := h.store.Update(r.Context(), func(d *state.Document) error {
		return d.AddAlternative(alt)
	})
	if err != nil {
		failFromError(w, err)
		return
	}
	created(w, alt)
}

// deleteAlternative handles DELETE /api/v1/alternatives/{id}. Mirror
// teardown happens on the next sync pass via the retired queue.
func (h *handler) deleteAlternative(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.store.Update(r.Context(), func(d *state.Document) error {
		return d.RemoveAlternative(id)
	})
	if err != nil {
		failFromError(w, err)
		return
	}
	ok(w, nil)
}

// CreateMirrorRequest is the request body for
// POST /api/v1/alternatives/{id}/mirrors.
type CreateMirrorRequest struct {
	SourceID   string `json:"source_id"`
	SourceName string `json:"source_name"`
	TargetName string `json:"target_name,omitempty"`
}

// createMirror handles POST /api/v1/alternatives/{id}/mirrors.
func (h *handler) createMirror(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req CreateMirrorRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	m := state.MirroredLibrary{
		SourceID:   req.SourceID,
		SourceName: req.SourceName,
		TargetName: req.TargetName,
	}
	err := h.store.Update(r.Context(), func(d *state.Document) error {
		return d.AddMirror(id, m)
	})
	if err != nil {
		failFromError(w, err)
		return
	}
	created(w, m)
}

// deleteMirror handles DELETE /api/v1/alternatives/{id}/mirrors/{sourceID}.
func (h *handler) deleteMirror(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sourceID := chi.URLParam(r, "sourceID")

	err := h.store.Update(r.Context(), func(d *state.Document) error {
		return d.RemoveMirror(id, sourceID)
	})
	if err != nil {
		failFromError(w, err)
		return
	}
	ok(w, nil)
}

// listMappings handles GET /api/v1/mappings.
func (h *handler) listMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := state.Read(h.store, func(d *state.Document) []state.LdapGroupMapping {
		return d.GroupMappings
	})
	if err != nil {
		failFromError(w, err)
		return
	}
	ok(w, mappings)
}

// replaceMappings handles PUT /api/v1/mappings: the full mapping list is
// replaced atomically, preserving declaration order for tie-breaking.
func (h *handler) replaceMappings(w http.ResponseWriter, r *http.Request) {
	var mappings []state.LdapGroupMapping
	if !decodeJSONBody(w, r, &mappings) {
		return
	}

	err := h.store.Update(r.Context(), func(d *state.Document) error {
		for _, m := range mappings {
			if m.GroupDN == "" {
				return &state.StateError{Code: state.ErrInvalidArgument, Message: "mapping group_dn is required"}
			}
			if d.Alternative(m.AlternativeID) == nil {
				return &state.StateError{Code: state.ErrNotFound, Message: "alternative not found", Key: m.AlternativeID}
			}
		}
		d.GroupMappings = mappings
		return nil
	})
	if err != nil {
		failFromError(w, err)
		return
	}
	ok(w, mappings)
}

// getSettings handles GET /api/v1/settings.
func (h *handler) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := state.Read(h.store, func(d *state.Document) state.SyncSettings {
		return d.Settings
	})
	if err != nil {
		failFromError(w, err)
		return
	}
	ok(w, settings)
}

// updateSettings handles PUT /api/v1/settings.
func (h *handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var settings state.SyncSettings
	if !decodeJSONBody(w, r, &settings) {
		return
	}

	err := h.store.Update(r.Context(), func(d *state.Document) error {
		if settings.DefaultAlternativeID != "" && d.Alternative(settings.DefaultAlternativeID) == nil {
			return &state.StateError{Code: state.ErrNotFound, Message: "alternative not found", Key: settings.DefaultAlternativeID}
		}
		d.Settings = settings
		return nil
	})
	if err != nil {
		failFromError(w, err)
		return
	}
	ok(w, settings)
}

// listAssignments handles GET /api/v1/assignments.
func (h *handler) listAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := state.Read(h.store, func(d *state.Document) []state.UserLanguageAssignment {
		return d.Assignments
	})
	if err != nil {
		failFromError(w, err)
		return
	}
	ok(w, assignments)
}

// SetAssignmentRequest is the request body for
// PUT /api/v1/users/{userID}/assignment.
type SetAssignmentRequest struct {
	AlternativeID string `json:"alternative_id"`
}

// setAssignment handles PUT /api/v1/users/{userID}/assignment: records a
// manual assignment, protected from automatic resolution.
func (h *handler) setAssignment(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req SetAssignmentRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := h.resolver.SetManual(r.Context(), userID, req.AlternativeID); err != nil {
		failFromError(w, err)
		return
	}
	ok(w, nil)
}

// clearAssignment handles DELETE /api/v1/users/{userID}/assignment:
// lifts the manual protection so the next pass re-resolves the user.
func (h *handler) clearAssignment(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if err := h.resolver.ClearManual(r.Context(), userID); err != nil {
		failFromError(w, err)
		return
	}
	ok(w, nil)
}

// expectedAccess handles GET /api/v1/users/{userID}/access.
func (h *handler) expectedAccess(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	expected, err := h.reconciler.ExpectedLibraryAccess(r.Context(), userID)
	if err != nil {
		failFromError(w, err)
		return
	}
	ok(w, map[string]any{
		"managed":   expected != nil,
		"libraries": expected,
	})
}

// reconcileUser handles POST /api/v1/users/{userID}/reconcile.
func (h *handler) reconcileUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	result, err := h.reconciler.ReconcileUser(r.Context(), userID)
	if err != nil {
		failFromError(w, err)
		return
	}
	ok(w, result)
}
