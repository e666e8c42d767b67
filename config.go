package authkit

import (
	"time"

	"github.com/dmitrymomot/authkit/pkg/config"
	"github.com/dmitrymomot/authkit/pkg/mailer"
	"github.com/dmitrymomot/authkit/pkg/ratelimit"
	"github.com/dmitrymomot/authkit/pkg/session"
)

// Config holds engine-level settings. Nested sections are loaded from the
// environment alongside the engine's own fields; see pkg/config.
type Config struct {
	// BasePath prefixes every route the engine serves.
	BasePath string `env:"AUTHKIT_BASE_PATH" envDefault:"/auth"`

	// TrustedOrigins lists origins allowed to send state-changing requests.
	// Empty means the Origin header is not checked.
	TrustedOrigins []string `env:"AUTHKIT_TRUSTED_ORIGINS" envSeparator:","`

	// AutoLinkOAuth links an OAuth identity with a verified email to an
	// existing local user instead of rejecting the sign-in.
	AutoLinkOAuth bool `env:"AUTHKIT_OAUTH_AUTO_LINK" envDefault:"false"`

	// RequireVerifiedOAuthEmail rejects OAuth profiles whose email the
	// provider has not verified.
	RequireVerifiedOAuthEmail bool `env:"AUTHKIT_OAUTH_VERIFIED_ONLY" envDefault:"true"`

	Session   session.Config
	Mailer    mailer.Config
	RateLimit ratelimit.Config
}

// LoadConfig reads the engine configuration from environment variables and
// an optional .env file.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfig returns the engine defaults used when no configuration is
// supplied.
func DefaultConfig() Config {
	return Config{
		BasePath:                  "/auth",
		AutoLinkOAuth:             false,
		RequireVerifiedOAuthEmail: true,
		Session:                   session.DefaultConfig(),
		Mailer: mailer.Config{
			AppName: "authkit",
			BaseURL: "http://localhost:8080",
		},
		RateLimit: ratelimit.Config{
			Capacity:       10,
			RefillRate:     1,
			RefillInterval: 6 * time.Second,
		},
	}
}
