package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserStore persists identity records.
type UserStore interface {
	// CreateUser stores a new user. Returns ErrConflict if the email is taken.
	CreateUser(ctx context.Context, user *User) error

	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, user *User) error

	// DeleteUser removes the user and cascades: its accounts and member
	// records are deleted and its sessions revoked.
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// AccountStore persists credential bindings.
type AccountStore interface {
	// CreateAccount stores a new account. Returns ErrConflict if
	// (Provider, ProviderAccountID) is already bound.
	CreateAccount(ctx context.Context, account *Account) error

	GetAccountByProvider(ctx context.Context, provider, providerAccountID string) (*Account, error)
	GetAccountByUserAndProvider(ctx context.Context, userID uuid.UUID, provider string) (*Account, error)
	ListAccountsByUser(ctx context.Context, userID uuid.UUID) ([]*Account, error)
	UpdateAccount(ctx context.Context, account *Account) error
	DeleteAccount(ctx context.Context, id uuid.UUID) error
}

// SessionStore persists sessions. A token maps to at most one live session.
type SessionStore interface {
	// CreateSession stores a new session. Returns ErrConflict if the token is
	// already in use by a live session.
	CreateSession(ctx context.Context, session *Session) error

	GetSessionByToken(ctx context.Context, token string) (*Session, error)

	// RotateSession atomically replaces the token of the live session
	// currently identified by oldToken and extends its expiry. It returns
	// ErrNotFound if oldToken does not identify a live session, including
	// when a concurrent rotation already consumed it. The old token is
	// invalidated in the same indivisible step that installs the new one.
	RotateSession(ctx context.Context, oldToken, newToken string, expiresAt time.Time) (*Session, error)

	// ExtendSession atomically moves the expiry of the live session
	// identified by token. Returns ErrNotFound if the token is not live.
	ExtendSession(ctx context.Context, token string, expiresAt time.Time) (*Session, error)

	// RevokeSession marks the session revoked. Revoking an unknown or
	// already-revoked token is not an error.
	RevokeSession(ctx context.Context, token string) error

	// RevokeUserSessions revokes every session owned by the user.
	RevokeUserSessions(ctx context.Context, userID uuid.UUID) error

	// DeleteExpiredSessions removes sessions whose expiry has passed.
	DeleteExpiredSessions(ctx context.Context) error
}

// VerificationStore persists single-use proof tokens.
type VerificationStore interface {
	CreateVerification(ctx context.Context, verification *Verification) error

	// ConsumeVerification atomically looks up the verification by value and
	// deletes it, so a second redemption attempt, concurrent or later,
	// returns ErrNotFound. The record is returned even if expired; expiry
	// policy belongs to the caller.
	ConsumeVerification(ctx context.Context, value string) (*Verification, error)

	DeleteExpiredVerifications(ctx context.Context) error
}

// OrganizationStore persists organizations and memberships.
type OrganizationStore interface {
	CreateOrganization(ctx context.Context, org *Organization) error
	GetOrganizationByID(ctx context.Context, id uuid.UUID) (*Organization, error)

	// DeleteOrganization removes the organization and cascades its members.
	DeleteOrganization(ctx context.Context, id uuid.UUID) error

	// CreateMember stores a membership. Returns ErrConflict if the user
	// already holds a member record in the organization.
	CreateMember(ctx context.Context, member *Member) error

	GetMember(ctx context.Context, userID, orgID uuid.UUID) (*Member, error)
	UpdateMember(ctx context.Context, member *Member) error
	DeleteMember(ctx context.Context, userID, orgID uuid.UUID) error
	ListMembers(ctx context.Context, orgID uuid.UUID) ([]*Member, error)
}

// Adapter is the full persistence contract a backend provides to the engine.
type Adapter interface {
	UserStore
	AccountStore
	SessionStore
	VerificationStore
	OrganizationStore
}
