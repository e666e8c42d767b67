package store

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist. Conditional
	// updates (RotateSession, ConsumeVerification) return it when the
	// precondition no longer holds.
	ErrNotFound = errors.New("store.not_found")

	// ErrConflict indicates a uniqueness constraint was violated
	// (duplicate email, duplicate session token, duplicate member record).
	ErrConflict = errors.New("store.conflict")

	// ErrInvalidRecord indicates a write was attempted with a record missing
	// required fields.
	ErrInvalidRecord = errors.New("store.invalid_record")
)
