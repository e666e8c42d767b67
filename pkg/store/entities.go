package store

import (
	"time"

	"github.com/google/uuid"
)

// Credential provider identifiers for Account records. OAuth providers use
// their own identifiers ("google", "github", ...).
const (
	ProviderCredential = "credential"
	ProviderPasskey    = "passkey"
)

// User is an identity record. Sessions and Accounts reference users but never
// own them.
type User struct {
	ID        uuid.UUID      `json:"id"`
	Email     string         `json:"email"`
	Name      string         `json:"name,omitempty"`
	Verified  bool           `json:"verified"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Account binds a User to one credential method. A user may own multiple
// accounts (multi-provider linking); (Provider, ProviderAccountID) is unique
// across the store.
type Account struct {
	ID                uuid.UUID `json:"id"`
	UserID            uuid.UUID `json:"user_id"`
	Provider          string    `json:"provider"`
	ProviderAccountID string    `json:"provider_account_id"`
	PasswordHash      []byte    `json:"-"`
	AccessToken       string    `json:"-"`
	RefreshToken      string    `json:"-"`
	TokenExpiresAt    time.Time `json:"token_expires_at,omitempty"`
	Credential        []byte    `json:"-"` // serialized passkey credential
	CreatedAt         time.Time `json:"created_at"`
}

// Session is a live, revocable proof of authentication bound to an opaque
// token. Expired and revoked sessions are terminal and never reactivated.
type Session struct {
	ID        uuid.UUID `json:"id"`
	Token     string    `json:"token"`
	UserID    uuid.UUID `json:"user_id"`
	Rotations int       `json:"rotations,omitempty"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the session's expiry has passed.
func (s *Session) IsExpired() bool {
	return s != nil && time.Now().After(s.ExpiresAt)
}

// IsLive reports whether the session is neither revoked nor expired.
func (s *Session) IsLive() bool {
	return s != nil && !s.Revoked && !s.IsExpired()
}

// Verification is a single-use, time-bound proof token (email confirmation,
// password reset, magic link, passkey challenge). Redemption deletes it.
type Verification struct {
	ID         uuid.UUID `json:"id"`
	Value      string    `json:"value"`
	Identifier string    `json:"identifier"`
	Payload    []byte    `json:"payload,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// IsExpired reports whether the verification's expiry has passed.
func (v *Verification) IsExpired() bool {
	return v != nil && time.Now().After(v.ExpiresAt)
}

// Organization owns zero or more members.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Member links a User to an Organization with one or more role identifiers.
// A user holds at most one member record per organization.
type Member struct {
	ID        uuid.UUID `json:"id"`
	OrgID     uuid.UUID `json:"org_id"`
	UserID    uuid.UUID `json:"user_id"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
}
