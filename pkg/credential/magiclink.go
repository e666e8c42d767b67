package credential

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/authkit/pkg/store"
)

// MagicLinkStorage is the slice of the storage contract passwordless
// sign-in needs.
type MagicLinkStorage interface {
	store.UserStore
	store.VerificationStore
}

// MagicLinkService implements passwordless email sign-in. A request issues a
// single-use token; redeeming it authenticates the user and marks the email
// verified.
type MagicLinkService struct {
	storage      MagicLinkStorage
	logger       *slog.Logger
	tokenTTL     time.Duration
	autoRegister bool
}

// MagicLinkOption configures a MagicLinkService during construction.
type MagicLinkOption func(*MagicLinkService)

// WithMagicLinkLogger sets a custom logger for the service.
func WithMagicLinkLogger(logger *slog.Logger) MagicLinkOption {
	return func(s *MagicLinkService) {
		s.logger = logger
	}
}

// WithMagicLinkTTL sets the lifetime of issued links.
func WithMagicLinkTTL(ttl time.Duration) MagicLinkOption {
	return func(s *MagicLinkService) {
		s.tokenTTL = ttl
	}
}

// WithAutoRegister controls whether requesting a link for an unknown email
// creates the user. Enabled by default.
func WithAutoRegister(enabled bool) MagicLinkOption {
	return func(s *MagicLinkService) {
		s.autoRegister = enabled
	}
}

// NewMagicLinkService creates a passwordless sign-in service.
func NewMagicLinkService(storage MagicLinkStorage, opts ...MagicLinkOption) *MagicLinkService {
	s := &MagicLinkService{
		storage:      storage,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		tokenTTL:     15 * time.Minute,
		autoRegister: true,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// LinkRequest carries the data needed to deliver a magic link.
type LinkRequest struct {
	Email     string
	Token     string
	ExpiresAt time.Time
}

// Request issues a single-use sign-in token for the email. Unknown emails
// get a user created when auto-registration is on, otherwise
// ErrUserNotFound.
func (s *MagicLinkService) Request(ctx context.Context, email string) (*LinkRequest, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	user, err := s.storage.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		if !s.autoRegister {
			return nil, ErrUserNotFound
		}
		user, err = s.register(ctx, email)
		if err != nil {
			return nil, err
		}
	}

	verification, err := issueVerification(ctx, s.storage, purposeMagicLink, user.ID.String(), nil, s.tokenTTL)
	if err != nil {
		return nil, err
	}

	return &LinkRequest{
		Email:     email,
		Token:     verification.Value,
		ExpiresAt: verification.ExpiresAt,
	}, nil
}

// Verify redeems a magic link token and returns the authenticated user. The
// token is consumed atomically; redeeming marks the user's email verified.
func (s *MagicLinkService) Verify(ctx context.Context, token string) (*store.User, error) {
	verification, err := redeemVerification(ctx, s.storage, purposeMagicLink, token)
	if err != nil {
		return nil, err
	}

	_, subject := splitIdentifier(verification.Identifier)
	userID, err := uuid.Parse(subject)
	if err != nil {
		return nil, ErrVerificationInvalid
	}

	user, err := s.storage.GetUserByID(ctx, userID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	if !user.Verified {
		user.Verified = true
		user.UpdatedAt = time.Now()
		if err := s.storage.UpdateUser(ctx, user); err != nil {
			s.logger.Error("failed to mark user verified",
				slog.String("user_id", user.ID.String()),
				slog.Any("error", err),
			)
		}
	}

	return user, nil
}

func (s *MagicLinkService) register(ctx context.Context, email string) (*store.User, error) {
	now := time.Now()
	user := &store.User{
		ID:        uuid.New(),
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.storage.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Lost a race with a concurrent request for the same email.
			return s.storage.GetUserByEmail(ctx, email)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}
