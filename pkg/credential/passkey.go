package credential

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/dmitrymomot/authkit/pkg/store"
)

// PasskeyConfig holds the WebAuthn relying-party settings.
type PasskeyConfig struct {
	RPID          string   `env:"PASSKEY_RP_ID" envDefault:"localhost"`
	RPDisplayName string   `env:"PASSKEY_RP_DISPLAY_NAME" envDefault:"authkit"`
	RPOrigins     []string `env:"PASSKEY_RP_ORIGINS" envSeparator:"," envDefault:"http://localhost"`
}

// PasskeyStorage is the slice of the storage contract passkeys need.
type PasskeyStorage interface {
	store.UserStore
	store.AccountStore
	store.VerificationStore
}

// PasskeyService implements WebAuthn registration and discoverable login.
// In-progress ceremonies are held as single-use verification records, so a
// challenge can never be answered twice.
type PasskeyService struct {
	storage      PasskeyStorage
	webauthn     *webauthn.WebAuthn
	logger       *slog.Logger
	challengeTTL time.Duration
}

// PasskeyOption configures a PasskeyService during construction.
type PasskeyOption func(*PasskeyService)

// WithPasskeyLogger sets a custom logger for the service.
func WithPasskeyLogger(logger *slog.Logger) PasskeyOption {
	return func(s *PasskeyService) {
		s.logger = logger
	}
}

// WithChallengeTTL sets the lifetime of ceremony challenges.
func WithChallengeTTL(ttl time.Duration) PasskeyOption {
	return func(s *PasskeyService) {
		s.challengeTTL = ttl
	}
}

// NewPasskeyService creates a WebAuthn passkey service.
func NewPasskeyService(storage PasskeyStorage, cfg PasskeyConfig, opts ...PasskeyOption) (*PasskeyService, error) {
	w, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.RPDisplayName,
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init webauthn: %w", err)
	}

	s := &PasskeyService{
		storage:      storage,
		webauthn:     w,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		challengeTTL: 5 * time.Minute,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// passkeyUser adapts a store.User and its passkey accounts to the
// webauthn.User contract.
type passkeyUser struct {
	user  *store.User
	creds []webauthn.Credential
}

func (u *passkeyUser) WebAuthnID() []byte {
	return []byte(u.user.ID.String())
}

func (u *passkeyUser) WebAuthnName() string {
	return u.user.Email
}

func (u *passkeyUser) WebAuthnDisplayName() string {
	if u.user.Name != "" {
		return u.user.Name
	}
	return u.user.Email
}

func (u *passkeyUser) WebAuthnCredentials() []webauthn.Credential {
	return u.creds
}

// ceremonyState is what a passkey challenge verification record carries.
type ceremonyState struct {
	Session webauthn.SessionData `json:"session"`
	UserID  string               `json:"user_id,omitempty"`
}

// ChallengeResponse pairs the client-facing ceremony options with the token
// that must come back on finish.
type ChallengeResponse struct {
	Options any    `json:"options"`
	Token   string `json:"token"`
}

// BeginRegistration starts a passkey registration ceremony for an
// authenticated user. Existing passkeys are excluded so the authenticator
// will not re-register one it already holds.
func (s *PasskeyService) BeginRegistration(ctx context.Context, userID uuid.UUID) (*ChallengeResponse, error) {
	user, err := s.storage.GetUserByID(ctx, userID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	creds, err := s.loadCredentials(ctx, userID)
	if err != nil {
		return nil, err
	}

	waUser := &passkeyUser{user: user, creds: creds}

	exclusions := make([]protocol.CredentialDescriptor, 0, len(creds))
	for _, c := range creds {
		exclusions = append(exclusions, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: c.ID,
		})
	}

	options, session, err := s.webauthn.BeginRegistration(waUser,
		webauthn.WithExclusions(exclusions),
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementPreferred),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPasskeyFailed, err)
	}

	token, err := s.storeCeremony(ctx, session, user.ID.String())
	if err != nil {
		return nil, err
	}

	return &ChallengeResponse{Options: options, Token: token}, nil
}

// FinishRegistration verifies the authenticator response and stores the new
// passkey as an account bound to the user.
func (s *PasskeyService) FinishRegistration(ctx context.Context, userID uuid.UUID, token string, response io.Reader) error {
	state, err := s.redeemCeremony(ctx, token)
	if err != nil {
		return err
	}
	if state.UserID != userID.String() {
		return ErrVerificationInvalid
	}

	user, err := s.storage.GetUserByID(ctx, userID)
	if err != nil {
		return ErrUserNotFound
	}

	creds, err := s.loadCredentials(ctx, userID)
	if err != nil {
		return err
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(response)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPasskeyFailed, err)
	}

	waUser := &passkeyUser{user: user, creds: creds}
	credential, err := s.webauthn.CreateCredential(waUser, state.Session, parsed)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPasskeyFailed, err)
	}

	blob, err := json.Marshal(credential)
	if err != nil {
		return fmt.Errorf("failed to serialize credential: %w", err)
	}

	account := &store.Account{
		ID:                uuid.New(),
		UserID:            userID,
		Provider:          store.ProviderPasskey,
		ProviderAccountID: base64.RawURLEncoding.EncodeToString(credential.ID),
		Credential:        blob,
		CreatedAt:         time.Now(),
	}

	if err := s.storage.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return ErrProviderLinked
		}
		return fmt.Errorf("failed to store passkey: %w", err)
	}

	return nil
}

// BeginLogin starts a discoverable (usernameless) login ceremony.
func (s *PasskeyService) BeginLogin(ctx context.Context) (*ChallengeResponse, error) {
	options, session, err := s.webauthn.BeginDiscoverableLogin()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPasskeyFailed, err)
	}

	token, err := s.storeCeremony(ctx, session, "")
	if err != nil {
		return nil, err
	}

	return &ChallengeResponse{Options: options, Token: token}, nil
}

// FinishLogin verifies a discoverable assertion and returns the
// authenticated user. The sign counter of the used passkey is persisted so
// cloned-authenticator detection keeps working.
func (s *PasskeyService) FinishLogin(ctx context.Context, token string, response io.Reader) (*store.User, error) {
	state, err := s.redeemCeremony(ctx, token)
	if err != nil {
		return nil, err
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(response)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPasskeyFailed, err)
	}

	var loginUser *store.User
	handler := func(rawID, userHandle []byte) (webauthn.User, error) {
		userID, err := uuid.Parse(string(userHandle))
		if err != nil {
			return nil, ErrPasskeyNotFound
		}
		user, err := s.storage.GetUserByID(ctx, userID)
		if err != nil {
			return nil, ErrPasskeyNotFound
		}
		creds, err := s.loadCredentials(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		loginUser = user
		return &passkeyUser{user: user, creds: creds}, nil
	}

	credential, err := s.webauthn.ValidateDiscoverableLogin(handler, state.Session, parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPasskeyFailed, err)
	}

	if credential.Authenticator.CloneWarning {
		s.logger.Warn("passkey clone warning",
			slog.String("user_id", loginUser.ID.String()),
		)
	}

	s.updateSignCount(ctx, loginUser.ID, credential)

	return loginUser, nil
}

// ListPasskeys returns the passkey accounts bound to a user.
func (s *PasskeyService) ListPasskeys(ctx context.Context, userID uuid.UUID) ([]*store.Account, error) {
	accounts, err := s.storage.ListAccountsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	passkeys := make([]*store.Account, 0, len(accounts))
	for _, a := range accounts {
		if a.Provider == store.ProviderPasskey {
			passkeys = append(passkeys, a)
		}
	}
	return passkeys, nil
}

// RemovePasskey deletes one passkey account from a user. A user must keep at
// least one way to sign in.
func (s *PasskeyService) RemovePasskey(ctx context.Context, userID uuid.UUID, credentialID string) error {
	accounts, err := s.storage.ListAccountsByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	if len(accounts) <= 1 {
		return ErrLastAccount
	}

	for _, a := range accounts {
		if a.Provider == store.ProviderPasskey && a.ProviderAccountID == credentialID {
			return s.storage.DeleteAccount(ctx, a.ID)
		}
	}
	return ErrPasskeyNotFound
}

func (s *PasskeyService) storeCeremony(ctx context.Context, session *webauthn.SessionData, userID string) (string, error) {
	payload, err := json.Marshal(ceremonyState{Session: *session, UserID: userID})
	if err != nil {
		return "", fmt.Errorf("failed to serialize ceremony state: %w", err)
	}

	verification, err := issueVerification(ctx, s.storage, purposePasskeyChallenge, userID, payload, s.challengeTTL)
	if err != nil {
		return "", err
	}
	return verification.Value, nil
}

func (s *PasskeyService) redeemCeremony(ctx context.Context, token string) (*ceremonyState, error) {
	verification, err := redeemVerification(ctx, s.storage, purposePasskeyChallenge, token)
	if err != nil {
		return nil, err
	}

	var state ceremonyState
	if err := json.Unmarshal(verification.Payload, &state); err != nil {
		return nil, ErrVerificationInvalid
	}
	return &state, nil
}

func (s *PasskeyService) loadCredentials(ctx context.Context, userID uuid.UUID) ([]webauthn.Credential, error) {
	accounts, err := s.storage.ListAccountsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	creds := make([]webauthn.Credential, 0, len(accounts))
	for _, a := range accounts {
		if a.Provider != store.ProviderPasskey {
			continue
		}
		var c webauthn.Credential
		if err := json.Unmarshal(a.Credential, &c); err != nil {
			s.logger.Warn("skipping malformed passkey credential",
				slog.String("account_id", a.ID.String()),
			)
			continue
		}
		creds = append(creds, c)
	}
	return creds, nil
}

func (s *PasskeyService) updateSignCount(ctx context.Context, userID uuid.UUID, credential *webauthn.Credential) {
	accountID := base64.RawURLEncoding.EncodeToString(credential.ID)
	accounts, err := s.storage.ListAccountsByUser(ctx, userID)
	if err != nil {
		return
	}
	for _, a := range accounts {
		if a.Provider != store.ProviderPasskey || a.ProviderAccountID != accountID {
			continue
		}
		var stored webauthn.Credential
		if err := json.Unmarshal(a.Credential, &stored); err != nil {
			return
		}
		if !bytes.Equal(stored.ID, credential.ID) {
			return
		}
		stored.Authenticator.SignCount = credential.Authenticator.SignCount
		stored.Authenticator.CloneWarning = credential.Authenticator.CloneWarning
		blob, err := json.Marshal(stored)
		if err != nil {
			return
		}
		a.Credential = blob
		if err := s.storage.UpdateAccount(ctx, a); err != nil {
			s.logger.Error("failed to persist passkey sign count",
				slog.String("account_id", a.ID.String()),
				slog.Any("error", err),
			)
		}
		return
	}
}
