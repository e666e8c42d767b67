package credential_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authkit/pkg/credential"
)

func newPasskeyService(t *testing.T) (*credential.PasskeyService, *credential.PasswordService) {
	t.Helper()
	adapter := newTestAdapter(t)
	svc, err := credential.NewPasskeyService(adapter, credential.PasskeyConfig{
		RPID:          "localhost",
		RPDisplayName: "authkit test",
		RPOrigins:     []string{"http://localhost"},
	})
	require.NoError(t, err)
	pw := credential.NewPasswordService(adapter, credential.WithHasher(fastHasher{}))
	return svc, pw
}

func TestPasskeyService_BeginRegistration(t *testing.T) {
	t.Parallel()

	t.Run("issues challenge for existing user", func(t *testing.T) {
		t.Parallel()

		svc, pw := newPasskeyService(t)
		ctx := context.Background()

		user, err := pw.Register(ctx, "sara@example.com", "password123")
		require.NoError(t, err)

		challenge, err := svc.BeginRegistration(ctx, user.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, challenge.Token)
		assert.NotNil(t, challenge.Options)
	})

	t.Run("unknown user", func(t *testing.T) {
		t.Parallel()

		svc, _ := newPasskeyService(t)
		_, err := svc.BeginRegistration(context.Background(), uuid.New())
		assert.ErrorIs(t, err, credential.ErrUserNotFound)
	})
}

func TestPasskeyService_ChallengeSingleUse(t *testing.T) {
	t.Parallel()

	svc, pw := newPasskeyService(t)
	ctx := context.Background()

	user, err := pw.Register(ctx, "tom@example.com", "password123")
	require.NoError(t, err)

	challenge, err := svc.BeginRegistration(ctx, user.ID)
	require.NoError(t, err)

	// A garbage response consumes the challenge and fails verification.
	err = svc.FinishRegistration(ctx, user.ID, challenge.Token, strings.NewReader("{}"))
	require.ErrorIs(t, err, credential.ErrPasskeyFailed)

	// The challenge is gone regardless of the earlier failure.
	err = svc.FinishRegistration(ctx, user.ID, challenge.Token, strings.NewReader("{}"))
	assert.ErrorIs(t, err, credential.ErrVerificationExpired)
}

func TestPasskeyService_ChallengeBoundToUser(t *testing.T) {
	t.Parallel()

	svc, pw := newPasskeyService(t)
	ctx := context.Background()

	owner, err := pw.Register(ctx, "uma@example.com", "password123")
	require.NoError(t, err)
	other, err := pw.Register(ctx, "vic@example.com", "password123")
	require.NoError(t, err)

	challenge, err := svc.BeginRegistration(ctx, owner.ID)
	require.NoError(t, err)

	err = svc.FinishRegistration(ctx, other.ID, challenge.Token, strings.NewReader("{}"))
	assert.ErrorIs(t, err, credential.ErrVerificationInvalid)
}

func TestPasskeyService_LoginChallenge(t *testing.T) {
	t.Parallel()

	svc, _ := newPasskeyService(t)
	ctx := context.Background()

	challenge, err := svc.BeginLogin(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, challenge.Token)

	_, err = svc.FinishLogin(ctx, challenge.Token, strings.NewReader("{}"))
	require.ErrorIs(t, err, credential.ErrPasskeyFailed)

	_, err = svc.FinishLogin(ctx, challenge.Token, strings.NewReader("{}"))
	assert.ErrorIs(t, err, credential.ErrVerificationExpired)
}

func TestPasskeyService_ListAndRemove(t *testing.T) {
	t.Parallel()

	svc, pw := newPasskeyService(t)
	ctx := context.Background()

	user, err := pw.Register(ctx, "wes@example.com", "password123")
	require.NoError(t, err)

	passkeys, err := svc.ListPasskeys(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, passkeys)

	// Only the credential account exists, so removal is always refused.
	err = svc.RemovePasskey(ctx, user.ID, "whatever")
	assert.ErrorIs(t, err, credential.ErrLastAccount)
}
