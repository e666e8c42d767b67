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

// OAuth provider identifiers.
const (
	OAuthProviderGoogle = "google"
	OAuthProviderGithub = "github"
)

// ProviderProfile is the normalized identity a provider adapter resolves
// from an authorization code.
type ProviderProfile struct {
	ProviderUserID string
	Email          string
	EmailVerified  bool
	Name           string
	AvatarURL      string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time
}

// ProviderAdapter abstracts one OAuth provider. Adapters own every
// provider-specific detail: endpoints, scopes, profile shape.
type ProviderAdapter interface {
	ProviderID() string

	// AuthURL builds the provider authorization URL carrying the state token.
	AuthURL(state string) (string, error)

	// ResolveProfile exchanges the authorization code and returns the
	// normalized profile. A rejected code surfaces as ErrInvalidCode.
	ResolveProfile(ctx context.Context, code string) (ProviderProfile, error)
}

// OAuthStorage is the slice of the storage contract OAuth sign-in needs.
type OAuthStorage interface {
	store.UserStore
	store.AccountStore
	store.VerificationStore
}

// OAuthService runs the authorization-code flow for one provider adapter.
// State tokens are single-use verification records, so a callback can never
// be replayed.
type OAuthService struct {
	storage      OAuthStorage
	adapter      ProviderAdapter
	logger       *slog.Logger
	stateTTL     time.Duration
	verifiedOnly bool
	autoLink     bool
}

// OAuthOption configures an OAuthService during construction.
type OAuthOption func(*OAuthService)

// WithOAuthLogger sets a custom logger for the service.
func WithOAuthLogger(logger *slog.Logger) OAuthOption {
	return func(s *OAuthService) {
		s.logger = logger
	}
}

// WithStateTTL sets the lifetime of state tokens.
func WithStateTTL(ttl time.Duration) OAuthOption {
	return func(s *OAuthService) {
		s.stateTTL = ttl
	}
}

// WithVerifiedOnly controls whether unverified provider emails are rejected.
// Enabled by default.
func WithVerifiedOnly(verifiedOnly bool) OAuthOption {
	return func(s *OAuthService) {
		s.verifiedOnly = verifiedOnly
	}
}

// WithAutoLink controls what happens when a provider identity arrives with
// an email that already belongs to a local user. When enabled the provider
// account is linked to that user; when disabled (the default) sign-in fails
// with ErrEmailAlreadyExists. Auto-linking only applies to verified
// provider emails.
func WithAutoLink(autoLink bool) OAuthOption {
	return func(s *OAuthService) {
		s.autoLink = autoLink
	}
}

// NewOAuthService creates an OAuth service for one provider adapter.
func NewOAuthService(storage OAuthStorage, adapter ProviderAdapter, opts ...OAuthOption) *OAuthService {
	s := &OAuthService{
		storage:      storage,
		adapter:      adapter,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		stateTTL:     10 * time.Minute,
		verifiedOnly: true,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ProviderID returns the identifier of the wrapped provider adapter.
func (s *OAuthService) ProviderID() string {
	return s.adapter.ProviderID()
}

// AuthURL issues a single-use state token and returns the provider
// authorization URL carrying it.
func (s *OAuthService) AuthURL(ctx context.Context) (string, error) {
	verification, err := issueVerification(ctx, s.storage, purposeOAuthState, s.adapter.ProviderID(), nil, s.stateTTL)
	if err != nil {
		return "", err
	}

	url, err := s.adapter.AuthURL(verification.Value)
	if err != nil {
		return "", fmt.Errorf("failed to build auth url: %w", err)
	}
	return url, nil
}

// Callback completes the authorization-code flow. The state token is
// consumed atomically, so a replayed callback fails with ErrInvalidState.
// Depending on what the store holds, the call signs in the linked user,
// auto-links or rejects an email collision, or registers a fresh user.
func (s *OAuthService) Callback(ctx context.Context, code, state string) (*store.User, error) {
	if err := s.consumeState(ctx, state); err != nil {
		return nil, err
	}

	profile, err := s.adapter.ResolveProfile(ctx, code)
	if err != nil {
		return nil, err
	}
	if profile.ProviderUserID == "" {
		return nil, fmt.Errorf("%w: missing provider user id", ErrProvider)
	}
	if profile.Email == "" {
		return nil, ErrNoPrimaryEmail
	}
	profile.Email = normalizeEmail(profile.Email)

	if s.verifiedOnly && !profile.EmailVerified {
		return nil, ErrUnverifiedEmail
	}

	// Existing link wins over everything else.
	account, err := s.storage.GetAccountByProvider(ctx, s.adapter.ProviderID(), profile.ProviderUserID)
	if err == nil {
		return s.refreshLinkedAccount(ctx, account, profile)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check provider link: %w", err)
	}

	existing, err := s.storage.GetUserByEmail(ctx, profile.Email)
	if err == nil {
		if !s.autoLink || !profile.EmailVerified {
			return nil, ErrEmailAlreadyExists
		}
		if err := s.createLink(ctx, existing.ID, profile); err != nil {
			return nil, err
		}
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing email: %w", err)
	}

	return s.register(ctx, profile)
}

// Link binds the provider identity to an already-authenticated user. The
// state token is consumed the same way as in Callback. A provider identity
// already bound to a different user fails with ErrProviderLinked.
func (s *OAuthService) Link(ctx context.Context, userID uuid.UUID, code, state string) (*store.User, error) {
	if err := s.consumeState(ctx, state); err != nil {
		return nil, err
	}

	profile, err := s.adapter.ResolveProfile(ctx, code)
	if err != nil {
		return nil, err
	}
	if profile.ProviderUserID == "" {
		return nil, fmt.Errorf("%w: missing provider user id", ErrProvider)
	}

	account, err := s.storage.GetAccountByProvider(ctx, s.adapter.ProviderID(), profile.ProviderUserID)
	if err == nil {
		if account.UserID != userID {
			return nil, ErrProviderLinked
		}
		return s.storage.GetUserByID(ctx, userID)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check provider link: %w", err)
	}

	user, err := s.storage.GetUserByID(ctx, userID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	if err := s.createLink(ctx, userID, profile); err != nil {
		return nil, err
	}
	return user, nil
}

// Unlink removes the provider binding from a user. A user must keep at
// least one way to sign in, so removing the last account is rejected.
func (s *OAuthService) Unlink(ctx context.Context, userID uuid.UUID) error {
	account, err := s.storage.GetAccountByUserAndProvider(ctx, userID, s.adapter.ProviderID())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoProviderLink
		}
		return fmt.Errorf("failed to load provider link: %w", err)
	}

	accounts, err := s.storage.ListAccountsByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	if len(accounts) <= 1 {
		return ErrLastAccount
	}

	return s.storage.DeleteAccount(ctx, account.ID)
}

func (s *OAuthService) consumeState(ctx context.Context, state string) error {
	verification, err := redeemVerification(ctx, s.storage, purposeOAuthState, state)
	if err != nil {
		return ErrInvalidState
	}
	_, provider := splitIdentifier(verification.Identifier)
	if provider != s.adapter.ProviderID() {
		return ErrInvalidState
	}
	return nil
}

func (s *OAuthService) refreshLinkedAccount(ctx context.Context, account *store.Account, profile ProviderProfile) (*store.User, error) {
	user, err := s.storage.GetUserByID(ctx, account.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load linked user: %w", err)
	}

	account.AccessToken = profile.AccessToken
	account.RefreshToken = profile.RefreshToken
	account.TokenExpiresAt = profile.TokenExpiresAt
	if err := s.storage.UpdateAccount(ctx, account); err != nil {
		s.logger.Error("failed to refresh provider tokens",
			slog.String("user_id", user.ID.String()),
			slog.String("provider", s.adapter.ProviderID()),
			slog.Any("error", err),
		)
	}

	return user, nil
}

func (s *OAuthService) createLink(ctx context.Context, userID uuid.UUID, profile ProviderProfile) error {
	account := &store.Account{
		ID:                uuid.New(),
		UserID:            userID,
		Provider:          s.adapter.ProviderID(),
		ProviderAccountID: profile.ProviderUserID,
		AccessToken:       profile.AccessToken,
		RefreshToken:      profile.RefreshToken,
		TokenExpiresAt:    profile.TokenExpiresAt,
		CreatedAt:         time.Now(),
	}

	if err := s.storage.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return ErrProviderLinked
		}
		return fmt.Errorf("failed to create provider link: %w", err)
	}
	return nil
}

func (s *OAuthService) register(ctx context.Context, profile ProviderProfile) (*store.User, error) {
	now := time.Now()
	user := &store.User{
		ID:        uuid.New(),
		Email:     profile.Email,
		Name:      profile.Name,
		Verified:  profile.EmailVerified,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.storage.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if err := s.createLink(ctx, user.ID, profile); err != nil {
		if deleteErr := s.storage.DeleteUser(ctx, user.ID); deleteErr != nil {
			s.logger.Error("failed to clean up user after link create failure",
				slog.String("user_id", user.ID.String()),
				slog.String("provider", s.adapter.ProviderID()),
				slog.Any("error", deleteErr),
			)
		}
		return nil, err
	}

	return user, nil
}
