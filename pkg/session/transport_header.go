package session

import (
	"net/http"
	"strings"
	"time"
)

// HeaderTransport implements Transport using the Authorization header with
// the Bearer scheme. Responses carry the token in X-Session-Token; clients
// are responsible for storing it.
type HeaderTransport struct{}

// NewHeaderTransport creates a bearer-header transport.
func NewHeaderTransport() *HeaderTransport {
	return &HeaderTransport{}
}

// GetToken extracts the bearer token from the Authorization header.
func (t *HeaderTransport) GetToken(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", ErrNoToken
	}

	scheme, token, found := strings.Cut(auth, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// SetToken exposes the token in a response header.
func (t *HeaderTransport) SetToken(w http.ResponseWriter, token string, ttl time.Duration) error {
	w.Header().Set("X-Session-Token", token)
	return nil
}

// ClearToken signals token removal to header-based clients.
func (t *HeaderTransport) ClearToken(w http.ResponseWriter) error {
	w.Header().Set("X-Session-Token", "")
	return nil
}
