package session

import (
	"net/http"
	"time"
)

// CookieTransport implements Transport using an HttpOnly cookie. The token is
// an opaque capability, so the cookie value is the token itself.
type CookieTransport struct {
	cookieName string
	secure     bool
	path       string
}

// NewCookieTransport creates a cookie-based transport.
func NewCookieTransport(cookieName string, secure bool) *CookieTransport {
	return &CookieTransport{
		cookieName: cookieName,
		secure:     secure,
		path:       "/",
	}
}

// GetToken extracts the session token from the cookie.
func (t *CookieTransport) GetToken(r *http.Request) (string, error) {
	c, err := r.Cookie(t.cookieName)
	if err != nil || c.Value == "" {
		return "", ErrNoToken
	}
	return c.Value, nil
}

// SetToken stores the session token in a cookie.
func (t *CookieTransport) SetToken(w http.ResponseWriter, token string, ttl time.Duration) error {
	http.SetCookie(w, &http.Cookie{
		Name:     t.cookieName,
		Value:    token,
		Path:     t.path,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   t.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClearToken expires the session cookie.
func (t *CookieTransport) ClearToken(w http.ResponseWriter) error {
	http.SetCookie(w, &http.Cookie{
		Name:     t.cookieName,
		Value:    "",
		Path:     t.path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   t.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
