package state

import "errors"

// StateError represents a domain error from desired-state operations.
//
// These are business logic errors (document missing, entity not found,
// precondition failed, etc.) as opposed to infrastructure errors
// (disk failure, network failure). Callers inspect the Code to decide
// whether a failure is transient, a no-op, or a real problem.
type StateError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Key identifies the entity related to the error (if applicable):
	// an alternative id, a user id, a library id.
	Key string
}

// Error implements the error interface.
func (e *StateError) Error() string {
	if e.Key != "" {
		return e.Message + ": " + e.Key
	}
	return e.Message
}

// ErrorCode represents the category of a state error.
type ErrorCode int

const (
	// ErrUnavailable indicates no canonical document exists yet.
	// Callers must treat this as a transient bootstrap state, not data loss.
	ErrUnavailable ErrorCode = iota

	// ErrNotFound indicates the requested entity doesn't exist
	ErrNotFound

	// ErrAlreadyExists indicates an entity with the same identity already exists
	ErrAlreadyExists

	// ErrInvalidArgument indicates invalid parameters were provided
	// Examples: empty id, malformed language code, relative base path
	ErrInvalidArgument

	// ErrConflict indicates a conditional update's precondition failed.
	// The intended change was silently dropped; callers retry or skip.
	ErrConflict

	// ErrIOError indicates the persistence backend failed
	ErrIOError
)

// IsCode reports whether err is a *StateError carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	var se *StateError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}
