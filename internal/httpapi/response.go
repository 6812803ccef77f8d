package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/marmos91/langmirror/pkg/state"
)

// Response is the standard API response wrapper.
//
// All API responses follow this structure for consistency:
//   - Status indicates the overall result ("ok" or "error")
//   - Timestamp provides response time for debugging
//   - Data contains the response payload (optional)
//   - Error contains error details when Status is "error" (optional)
type Response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}

func created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, Response{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}

func fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Response{
		Status:    "error",
		Timestamp: time.Now().UTC(),
		Error:     msg,
	})
}

func badRequest(w http.ResponseWriter, msg string) {
	fail(w, http.StatusBadRequest, msg)
}

// failFromError maps state error codes onto HTTP statuses; anything
// unrecognized is a 500.
func failFromError(w http.ResponseWriter, err error) {
	var serr *state.StateError
	if errors.As(err, &serr) {
		switch serr.Code {
		case state.ErrNotFound:
			fail(w, http.StatusNotFound, serr.Error())
			return
		case state.ErrAlreadyExists, state.ErrConflict:
			fail(w, http.StatusConflict, serr.Error())
			return
		case state.ErrInvalidArgument:
			fail(w, http.StatusBadRequest, serr.Error())
			return
		case state.ErrUnavailable:
			fail(w, http.StatusServiceUnavailable, serr.Error())
			return
		}
	}
	fail(w, http.StatusInternalServerError, err.Error())
}

// decodeJSONBody decodes a JSON request body into the provided pointer.
// Returns true if successful, false if decoding fails (error response is
// written automatically).
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "Invalid request body")
		return false
	}
	return true
}
