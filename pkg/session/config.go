package session

import "time"

// Config holds session configuration.
type Config struct {
	// TTL is the lifetime of a session from creation or refresh.
	TTL time.Duration `env:"SESSION_TTL" envDefault:"168h"`

	// RotateOnRefresh issues a new token on every refresh, invalidating the
	// old one atomically.
	RotateOnRefresh bool `env:"SESSION_ROTATE_ON_REFRESH" envDefault:"true"`

	// CookieName is the name of the session cookie.
	CookieName string `env:"SESSION_COOKIE_NAME" envDefault:"authkit_session"`

	// SecureCookies enables the Secure flag on session cookies
	// (recommended for production).
	SecureCookies bool `env:"SESSION_SECURE_COOKIES" envDefault:"false"`
}

// DefaultConfig returns default session configuration.
func DefaultConfig() Config {
	return Config{
		TTL:             7 * 24 * time.Hour,
		RotateOnRefresh: true,
		CookieName:      "authkit_session",
		SecureCookies:   false,
	}
}
