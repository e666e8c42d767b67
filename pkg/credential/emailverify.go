package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/authkit/pkg/store"
)

// EmailVerifier issues and redeems email confirmation tokens for existing
// users. Unlike magic links, confirming an email does not authenticate.
type EmailVerifier struct {
	storage  MagicLinkStorage
	tokenTTL time.Duration
}

// NewEmailVerifier creates an email confirmation service. A zero ttl falls
// back to 24 hours.
func NewEmailVerifier(storage MagicLinkStorage, ttl time.Duration) *EmailVerifier {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &EmailVerifier{
		storage:  storage,
		tokenTTL: ttl,
	}
}

// Request issues a single-use confirmation token for the user.
func (v *EmailVerifier) Request(ctx context.Context, userID uuid.UUID) (*LinkRequest, error) {
	user, err := v.storage.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	verification, err := issueVerification(ctx, v.storage, purposeEmailVerify, user.ID.String(), nil, v.tokenTTL)
	if err != nil {
		return nil, err
	}

	return &LinkRequest{
		Email:     user.Email,
		Token:     verification.Value,
		ExpiresAt: verification.ExpiresAt,
	}, nil
}

// Confirm redeems a confirmation token and marks the user verified. The
// token is consumed atomically.
func (v *EmailVerifier) Confirm(ctx context.Context, token string) (*store.User, error) {
	verification, err := redeemVerification(ctx, v.storage, purposeEmailVerify, token)
	if err != nil {
		return nil, err
	}

	_, subject := splitIdentifier(verification.Identifier)
	userID, err := uuid.Parse(subject)
	if err != nil {
		return nil, ErrVerificationInvalid
	}

	user, err := v.storage.GetUserByID(ctx, userID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	if !user.Verified {
		user.Verified = true
		user.UpdatedAt = time.Now()
		if err := v.storage.UpdateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to mark user verified: %w", err)
		}
	}

	return user, nil
}
