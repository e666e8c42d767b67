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

// PasswordStorage is the slice of the storage contract password
// authentication needs.
type PasswordStorage interface {
	store.UserStore
	store.AccountStore
	store.VerificationStore
}

// PasswordService provides registration and verification of email/password
// credentials, plus the reset flow.
type PasswordService struct {
	storage       PasswordStorage
	hasher        Hasher
	logger        *slog.Logger
	resetTokenTTL time.Duration
	minLength     int
	maxLength     int
}

// PasswordOption configures a PasswordService during construction.
type PasswordOption func(*PasswordService)

// WithPasswordLogger sets a custom logger for the service.
func WithPasswordLogger(logger *slog.Logger) PasswordOption {
	return func(s *PasswordService) {
		s.logger = logger
	}
}

// WithHasher swaps the password-hashing strategy.
func WithHasher(hasher Hasher) PasswordOption {
	return func(s *PasswordService) {
		s.hasher = hasher
	}
}

// WithResetTokenTTL sets the TTL for password reset tokens.
func WithResetTokenTTL(ttl time.Duration) PasswordOption {
	return func(s *PasswordService) {
		s.resetTokenTTL = ttl
	}
}

// WithPasswordLength sets the accepted password length bounds.
func WithPasswordLength(min, max int) PasswordOption {
	return func(s *PasswordService) {
		s.minLength = min
		s.maxLength = max
	}
}

// NewPasswordService creates a password authentication service.
func NewPasswordService(storage PasswordStorage, opts ...PasswordOption) *PasswordService {
	s := &PasswordService{
		storage:       storage,
		hasher:        NewBcryptHasher(0),
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		resetTokenTTL: 1 * time.Hour,
		minLength:     8,
		maxLength:     128,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *PasswordService) validatePassword(password string) error {
	if len(password) < s.minLength || len(password) > s.maxLength {
		return ErrWeakPassword
	}
	return nil
}

// Register creates a new user with an email/password account. Exactly one
// User and one credential Account are created; a duplicate email fails with
// ErrEmailAlreadyExists and creates no records.
func (s *PasswordService) Register(ctx context.Context, email, password string) (*store.User, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := s.validatePassword(password); err != nil {
		return nil, err
	}

	if _, err := s.storage.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailAlreadyExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &store.User{
		ID:        uuid.New(),
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.storage.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	account := &store.Account{
		ID:                uuid.New(),
		UserID:            user.ID,
		Provider:          store.ProviderCredential,
		ProviderAccountID: email,
		PasswordHash:      hash,
		CreatedAt:         now,
	}

	if err := s.storage.CreateAccount(ctx, account); err != nil {
		// Remove the half-created user to keep the scenario atomic from the
		// caller's perspective.
		if deleteErr := s.storage.DeleteUser(ctx, user.ID); deleteErr != nil {
			s.logger.Error("failed to clean up user after account create failure",
				slog.String("user_id", user.ID.String()),
				slog.Any("error", deleteErr),
			)
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return user, nil
}

// Verify checks an email/password pair and returns the user. Every failure
// mode is reported as ErrInvalidCredentials to prevent user enumeration.
func (s *PasswordService) Verify(ctx context.Context, email, password string) (*store.User, error) {
	email = normalizeEmail(email)

	user, err := s.storage.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	account, err := s.storage.GetAccountByUserAndProvider(ctx, user.ID, store.ProviderCredential)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := s.hasher.Compare(account.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// ResetRequest carries the data needed to deliver a password reset link.
type ResetRequest struct {
	Email     string
	Token     string
	ExpiresAt time.Time
}

// RequestReset creates a single-use reset token for the email. Callers
// should always report success to the end user regardless of the outcome.
func (s *PasswordService) RequestReset(ctx context.Context, email string) (*ResetRequest, error) {
	email = normalizeEmail(email)

	user, err := s.storage.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	verification, err := issueVerification(ctx, s.storage, purposePasswordReset, user.ID.String(), nil, s.resetTokenTTL)
	if err != nil {
		return nil, err
	}

	return &ResetRequest{
		Email:     email,
		Token:     verification.Value,
		ExpiresAt: verification.ExpiresAt,
	}, nil
}

// Reset redeems a reset token and installs the new password. The token is
// consumed atomically: a second attempt, concurrent or later, fails with
// ErrVerificationExpired.
func (s *PasswordService) Reset(ctx context.Context, token, newPassword string) (*store.User, error) {
	if err := s.validatePassword(newPassword); err != nil {
		return nil, err
	}

	verification, err := redeemVerification(ctx, s.storage, purposePasswordReset, token)
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

	account, err := s.storage.GetAccountByUserAndProvider(ctx, user.ID, store.ProviderCredential)
	if err != nil {
		return nil, ErrUserNotFound
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account.PasswordHash = hash
	if err := s.storage.UpdateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to update password: %w", err)
	}

	return user, nil
}

// ChangePassword updates the password of an authenticated user after
// verifying the current one.
func (s *PasswordService) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	if err := s.validatePassword(newPassword); err != nil {
		return err
	}

	account, err := s.storage.GetAccountByUserAndProvider(ctx, userID, store.ProviderCredential)
	if err != nil {
		return ErrInvalidCredentials
	}

	if err := s.hasher.Compare(account.PasswordHash, oldPassword); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	account.PasswordHash = hash
	if err := s.storage.UpdateAccount(ctx, account); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return nil
}
