package credential

import "errors"

// General verification errors.
var (
	ErrInvalidCredentials = errors.New("credential.invalid")
	ErrEmailAlreadyExists = errors.New("credential.email_already_exists")
	ErrUserNotFound       = errors.New("credential.user_not_found")
	ErrWeakPassword       = errors.New("credential.weak_password")
	ErrInvalidEmail       = errors.New("credential.invalid_email")
)

// Verification token errors. A consumed or expired token always surfaces as
// ErrVerificationExpired, so callers cannot probe whether a token ever
// existed.
var (
	ErrVerificationExpired = errors.New("credential.verification_expired")
	ErrVerificationInvalid = errors.New("credential.verification_invalid")
)

// OAuth errors.
var (
	ErrInvalidState    = errors.New("credential.oauth_invalid_state")
	ErrInvalidCode     = errors.New("credential.oauth_invalid_code")
	ErrProviderLinked  = errors.New("credential.oauth_provider_linked")
	ErrNoProviderLink  = errors.New("credential.oauth_no_provider_link")
	ErrLastAccount     = errors.New("credential.last_account")
	ErrUnverifiedEmail = errors.New("credential.oauth_unverified_email")
	ErrNoPrimaryEmail  = errors.New("credential.oauth_no_primary_email")

	// ErrProvider wraps failures of the external provider itself
	// (network, 5xx, malformed profile).
	ErrProvider = errors.New("credential.provider_error")
)

// Passkey errors.
var (
	ErrPasskeyNotFound = errors.New("credential.passkey_not_found")
	ErrPasskeyFailed   = errors.New("credential.passkey_failed")
)
