package session

import "errors"

var (
	// ErrSessionNotFound indicates no session exists for the token.
	ErrSessionNotFound = errors.New("session.not_found")

	// ErrSessionExpired indicates the session's expiry has passed.
	ErrSessionExpired = errors.New("session.expired")

	// ErrSessionRevoked indicates the session was revoked, including the case
	// of a stale token left behind by a concurrent rotation.
	ErrSessionRevoked = errors.New("session.revoked")

	// ErrTokenGeneration indicates token generation failed.
	ErrTokenGeneration = errors.New("session.token_generation_failed")

	// ErrNoToken indicates the request carried no session token.
	ErrNoToken = errors.New("session.no_token")
)
