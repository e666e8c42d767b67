package credential

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/authkit/pkg/store"
)

// Verification identifier prefixes. The identifier records what the token
// proves, scoping redemption to one flow.
const (
	purposeMagicLink        = "magic_link"
	purposeEmailVerify      = "email_verify"
	purposePasswordReset    = "password_reset"
	purposeOAuthState       = "oauth_state"
	purposePasskeyChallenge = "passkey_challenge"
)

func identifier(purpose, subject string) string {
	return purpose + ":" + subject
}

func splitIdentifier(id string) (purpose, subject string) {
	purpose, subject, _ = strings.Cut(id, ":")
	return purpose, subject
}

// generateToken creates a cryptographically unguessable verification value.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// issueVerification creates and persists a single-use verification record.
func issueVerification(ctx context.Context, s store.VerificationStore, purpose, subject string, payload []byte, ttl time.Duration) (*store.Verification, error) {
	value, err := generateToken()
	if err != nil {
		return nil, err
	}

	verification := &store.Verification{
		ID:         uuid.New(),
		Value:      value,
		Identifier: identifier(purpose, subject),
		Payload:    payload,
		ExpiresAt:  time.Now().Add(ttl),
		CreatedAt:  time.Now(),
	}

	if err := s.CreateVerification(ctx, verification); err != nil {
		return nil, fmt.Errorf("failed to store verification: %w", err)
	}

	return verification, nil
}

// redeemVerification atomically consumes a verification and enforces purpose
// and expiry. A missing (already consumed) or expired token surfaces as
// ErrVerificationExpired; a token of the wrong purpose as
// ErrVerificationInvalid.
func redeemVerification(ctx context.Context, s store.VerificationStore, purpose, value string) (*store.Verification, error) {
	verification, err := s.ConsumeVerification(ctx, value)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrVerificationExpired
		}
		return nil, fmt.Errorf("failed to consume verification: %w", err)
	}

	gotPurpose, _ := splitIdentifier(verification.Identifier)
	if gotPurpose != purpose {
		return nil, ErrVerificationInvalid
	}

	if verification.IsExpired() {
		return nil, ErrVerificationExpired
	}

	return verification, nil
}

// normalizeEmail lowercases and trims an email address.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateEmail rejects addresses the mail package cannot parse.
func validateEmail(email string) error {
	if email == "" {
		return ErrInvalidEmail
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrInvalidEmail
	}
	return nil
}
