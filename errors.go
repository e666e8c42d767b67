package authkit

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/authkit/pkg/access"
	"github.com/dmitrymomot/authkit/pkg/credential"
	"github.com/dmitrymomot/authkit/pkg/plugin"
	"github.com/dmitrymomot/authkit/pkg/ratelimit"
	"github.com/dmitrymomot/authkit/pkg/session"
	"github.com/dmitrymomot/authkit/pkg/store"
)

var (
	// ErrUntrustedOrigin indicates a state-changing request from an origin
	// outside the configured allow list.
	ErrUntrustedOrigin = errors.New("authkit.untrusted_origin")

	// ErrUnauthenticated indicates the request carried no valid session.
	ErrUnauthenticated = errors.New("authkit.unauthenticated")

	// ErrProviderNotConfigured indicates a request for an OAuth provider the
	// engine was not configured with.
	ErrProviderNotConfigured = errors.New("authkit.provider_not_configured")

	// ErrPasskeysNotConfigured indicates passkey routes were hit without
	// WithPasskeys.
	ErrPasskeysNotConfigured = errors.New("authkit.passkeys_not_configured")

	// ErrInvalidRequest indicates a malformed request body.
	ErrInvalidRequest = errors.New("authkit.invalid_request")
)

// httpStatus maps a pipeline error to the HTTP status and a stable machine
// code for the response body. Unknown errors map to 500 with a generic code
// so internals never leak to the client.
func httpStatus(err error) (int, string) {
	switch {
	case errors.Is(err, credential.ErrInvalidCredentials),
		errors.Is(err, credential.ErrPasskeyFailed),
		errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrSessionExpired),
		errors.Is(err, session.ErrSessionRevoked),
		errors.Is(err, session.ErrNoToken),
		errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthorized"

	case errors.Is(err, access.ErrForbidden),
		errors.Is(err, ErrUntrustedOrigin):
		return http.StatusForbidden, "forbidden"

	case errors.Is(err, credential.ErrEmailAlreadyExists),
		errors.Is(err, credential.ErrProviderLinked),
		errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "conflict"

	case errors.Is(err, credential.ErrUserNotFound),
		errors.Is(err, credential.ErrPasskeyNotFound),
		errors.Is(err, credential.ErrNoProviderLink),
		errors.Is(err, ErrProviderNotConfigured),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"

	case errors.Is(err, ratelimit.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"

	case errors.Is(err, credential.ErrWeakPassword):
		return http.StatusBadRequest, "weak_password"

	case errors.Is(err, credential.ErrInvalidEmail):
		return http.StatusBadRequest, "invalid_email"

	case errors.Is(err, credential.ErrVerificationExpired),
		errors.Is(err, credential.ErrVerificationInvalid),
		errors.Is(err, credential.ErrInvalidState),
		errors.Is(err, credential.ErrInvalidCode):
		return http.StatusBadRequest, "invalid_token"

	case errors.Is(err, credential.ErrUnverifiedEmail),
		errors.Is(err, credential.ErrNoPrimaryEmail):
		return http.StatusForbidden, "unverified_email"

	case errors.Is(err, credential.ErrLastAccount):
		return http.StatusConflict, "last_account"

	case errors.Is(err, credential.ErrProvider):
		return http.StatusBadGateway, "provider_error"

	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	}

	// Mappable errors wrapped by a hook already matched above via Unwrap;
	// anything left from a hook is an internal failure.
	var hookErr *plugin.HookError
	if errors.As(err, &hookErr) {
		return http.StatusInternalServerError, "plugin_error"
	}

	return http.StatusInternalServerError, "internal_error"
}
