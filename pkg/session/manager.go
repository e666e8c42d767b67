package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/authkit/pkg/store"
)

// Manager handles session lifecycle operations against a storage adapter.
type Manager struct {
	store  store.SessionStore
	config Config
	logger *slog.Logger
}

// Option configures a Manager during construction.
type Option func(*Manager)

// WithConfig sets the session configuration.
func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		m.config = cfg
	}
}

// WithLogger sets a custom logger for the manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a session manager backed by the given store.
func NewManager(s store.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		store:  s,
		config: DefaultConfig(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Config returns the manager's configuration.
func (m *Manager) Config() Config {
	return m.config
}

// Create issues a new session for the user with expiry = now + TTL.
func (m *Manager) Create(ctx context.Context, userID uuid.UUID) (*store.Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &store.Session{
		ID:        uuid.New(),
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.config.TTL),
	}

	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	return session, nil
}

// Validate resolves the token to a live session. Reading an expired session
// lazily marks it revoked; the revocation is idempotent even if raced.
func (m *Manager) Validate(ctx context.Context, token string) (*store.Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}

	session, err := m.store.GetSessionByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if session.Revoked {
		return nil, ErrSessionRevoked
	}

	if session.IsExpired() {
		if err := m.store.RevokeSession(ctx, token); err != nil {
			m.logger.Warn("failed to revoke expired session",
				slog.String("session_id", session.ID.String()),
				slog.Any("error", err),
			)
		}
		return nil, ErrSessionExpired
	}

	return session, nil
}

// Refresh extends the session's expiry. With rotation enabled it issues a new
// token and invalidates the old one in a single atomic storage step: of two
// refreshes racing on one token, exactly one succeeds and the other fails
// with ErrSessionRevoked.
func (m *Manager) Refresh(ctx context.Context, token string) (*store.Session, error) {
	// Surface terminal states with their precise error before attempting the
	// conditional update.
	if _, err := m.Validate(ctx, token); err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(m.config.TTL)

	if !m.config.RotateOnRefresh {
		session, err := m.store.ExtendSession(ctx, token, expiresAt)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrSessionRevoked
			}
			return nil, fmt.Errorf("failed to extend session: %w", err)
		}
		return session, nil
	}

	newToken, err := generateToken()
	if err != nil {
		return nil, err
	}

	session, err := m.store.RotateSession(ctx, token, newToken, expiresAt)
	if err != nil {
		// The token stopped being current between the validate above and the
		// conditional update: a concurrent refresh won the race.
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionRevoked
		}
		return nil, fmt.Errorf("failed to rotate session: %w", err)
	}

	return session, nil
}

// Revoke marks the session revoked. Revoking an unknown or already-revoked
// token is not an error.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.store.RevokeSession(ctx, token); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// RevokeAll revokes every session owned by the user.
func (m *Manager) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	if err := m.store.RevokeUserSessions(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke user sessions: %w", err)
	}
	return nil
}

// generateToken creates a cryptographically unguessable opaque token.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Join(ErrTokenGeneration, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
