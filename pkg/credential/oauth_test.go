package credential_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authkit/pkg/credential"
	"github.com/dmitrymomot/authkit/pkg/store"
)

// fakeProvider resolves every code to a fixed profile, failing on the codes
// it is told to reject.
type fakeProvider struct {
	id      string
	profile credential.ProviderProfile
	badCode string
}

func (p *fakeProvider) ProviderID() string { return p.id }

func (p *fakeProvider) AuthURL(state string) (string, error) {
	return "https://provider.test/authorize?state=" + state, nil
}

func (p *fakeProvider) ResolveProfile(ctx context.Context, code string) (credential.ProviderProfile, error) {
	if code == p.badCode {
		return credential.ProviderProfile{}, credential.ErrInvalidCode
	}
	return p.profile, nil
}

func newOAuthService(t *testing.T, profile credential.ProviderProfile, opts ...credential.OAuthOption) (*credential.OAuthService, *store.MemoryAdapter) {
	t.Helper()
	adapter := newTestAdapter(t)
	provider := &fakeProvider{id: "testprov", profile: profile, badCode: "bad-code"}
	return credential.NewOAuthService(adapter, provider, opts...), adapter
}

// stateFromURL extracts the state token the service put into the auth URL.
func stateFromURL(t *testing.T, url string) string {
	t.Helper()
	_, state, found := strings.Cut(url, "state=")
	require.True(t, found, "auth url carries no state")
	return state
}

func TestOAuthService_Callback(t *testing.T) {
	t.Parallel()

	profile := credential.ProviderProfile{
		ProviderUserID: "prov-123",
		Email:          "Pat@Example.com",
		EmailVerified:  true,
		Name:           "Pat",
	}

	t.Run("registers fresh user", func(t *testing.T) {
		t.Parallel()

		svc, adapter := newOAuthService(t, profile)
		ctx := context.Background()

		url, err := svc.AuthURL(ctx)
		require.NoError(t, err)
		state := stateFromURL(t, url)

		user, err := svc.Callback(ctx, "good-code", state)
		require.NoError(t, err)
		assert.Equal(t, "pat@example.com", user.Email)
		assert.True(t, user.Verified)

		account, err := adapter.GetAccountByProvider(ctx, "testprov", "prov-123")
		require.NoError(t, err)
		assert.Equal(t, user.ID, account.UserID)
	})

	t.Run("existing link signs in", func(t *testing.T) {
		t.Parallel()

		svc, _ := newOAuthService(t, profile)
		ctx := context.Background()

		url, err := svc.AuthURL(ctx)
		require.NoError(t, err)
		first, err := svc.Callback(ctx, "good-code", stateFromURL(t, url))
		require.NoError(t, err)

		url, err = svc.AuthURL(ctx)
		require.NoError(t, err)
		second, err := svc.Callback(ctx, "good-code", stateFromURL(t, url))
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("state is single use", func(t *testing.T) {
		t.Parallel()

		svc, _ := newOAuthService(t, profile)
		ctx := context.Background()

		url, err := svc.AuthURL(ctx)
		require.NoError(t, err)
		state := stateFromURL(t, url)

		_, err = svc.Callback(ctx, "good-code", state)
		require.NoError(t, err)

		_, err = svc.Callback(ctx, "good-code", state)
		assert.ErrorIs(t, err, credential.ErrInvalidState)
	})

	t.Run("forged state rejected", func(t *testing.T) {
		t.Parallel()

		svc, _ := newOAuthService(t, profile)
		_, err := svc.Callback(context.Background(), "good-code", "forged")
		assert.ErrorIs(t, err, credential.ErrInvalidState)
	})

	t.Run("rejected code", func(t *testing.T) {
		t.Parallel()

		svc, _ := newOAuthService(t, profile)
		ctx := context.Background()

		url, err := svc.AuthURL(ctx)
		require.NoError(t, err)

		_, err = svc.Callback(ctx, "bad-code", stateFromURL(t, url))
		assert.ErrorIs(t, err, credential.ErrInvalidCode)
	})

	t.Run("unverified email rejected by default", func(t *testing.T) {
		t.Parallel()

		unverified := profile
		unverified.EmailVerified = false
		svc, _ := newOAuthService(t, unverified)
		ctx := context.Background()

		url, err := svc.AuthURL(ctx)
		require.NoError(t, err)

		_, err = svc.Callback(ctx, "good-code", stateFromURL(t, url))
		assert.ErrorIs(t, err, credential.ErrUnverifiedEmail)
	})

	t.Run("email collision rejected without auto-link", func(t *testing.T) {
		t.Parallel()

		svc, adapter := newOAuthService(t, profile)
		ctx := context.Background()

		pw := credential.NewPasswordService(adapter, credential.WithHasher(fastHasher{}))
		_, err := pw.Register(ctx, "pat@example.com", "password123")
		require.NoError(t, err)

		url, err := svc.AuthURL(ctx)
		require.NoError(t, err)

		_, err = svc.Callback(ctx, "good-code", stateFromURL(t, url))
		assert.ErrorIs(t, err, credential.ErrEmailAlreadyExists)
	})

	t.Run("email collision auto-links when enabled", func(t *testing.T) {
		t.Parallel()

		svc, adapter := newOAuthService(t, profile, credential.WithAutoLink(true))
		ctx := context.Background()

		pw := credential.NewPasswordService(adapter, credential.WithHasher(fastHasher{}))
		existing, err := pw.Register(ctx, "pat@example.com", "password123")
		require.NoError(t, err)

		url, err := svc.AuthURL(ctx)
		require.NoError(t, err)

		user, err := svc.Callback(ctx, "good-code", stateFromURL(t, url))
		require.NoError(t, err)
		assert.Equal(t, existing.ID, user.ID)

		account, err := adapter.GetAccountByProvider(ctx, "testprov", "prov-123")
		require.NoError(t, err)
		assert.Equal(t, existing.ID, account.UserID)
	})
}

func TestOAuthService_LinkUnlink(t *testing.T) {
	t.Parallel()

	profile := credential.ProviderProfile{
		ProviderUserID: "prov-456",
		Email:          "quinn@example.com",
		EmailVerified:  true,
	}

	t.Run("link then unlink", func(t *testing.T) {
		t.Parallel()

		svc, adapter := newOAuthService(t, profile)
		ctx := context.Background()

		pw := credential.NewPasswordService(adapter, credential.WithHasher(fastHasher{}))
		user, err := pw.Register(ctx, "quinn@example.com", "password123")
		require.NoError(t, err)

		url, err := svc.AuthURL(ctx)
		require.NoError(t, err)

		linked, err := svc.Link(ctx, user.ID, "good-code", stateFromURL(t, url))
		require.NoError(t, err)
		assert.Equal(t, user.ID, linked.ID)

		require.NoError(t, svc.Unlink(ctx, user.ID))

		err = svc.Unlink(ctx, user.ID)
		assert.ErrorIs(t, err, credential.ErrNoProviderLink)
	})

	t.Run("identity bound to another user", func(t *testing.T) {
		t.Parallel()

		svc, adapter := newOAuthService(t, profile)
		ctx := context.Background()

		// First user claims the provider identity through sign-in.
		url, err := svc.AuthURL(ctx)
		require.NoError(t, err)
		owner, err := svc.Callback(ctx, "good-code", stateFromURL(t, url))
		require.NoError(t, err)

		pw := credential.NewPasswordService(adapter, credential.WithHasher(fastHasher{}))
		other, err := pw.Register(ctx, "rita@example.com", "password123")
		require.NoError(t, err)
		require.NotEqual(t, owner.ID, other.ID)

		url, err = svc.AuthURL(ctx)
		require.NoError(t, err)

		_, err = svc.Link(ctx, other.ID, "good-code", stateFromURL(t, url))
		assert.ErrorIs(t, err, credential.ErrProviderLinked)
	})

	t.Run("unlinking the only account is rejected", func(t *testing.T) {
		t.Parallel()

		svc, _ := newOAuthService(t, profile)
		ctx := context.Background()

		url, err := svc.AuthURL(ctx)
		require.NoError(t, err)
		user, err := svc.Callback(ctx, "good-code", stateFromURL(t, url))
		require.NoError(t, err)

		err = svc.Unlink(ctx, user.ID)
		assert.ErrorIs(t, err, credential.ErrLastAccount)
	})

	t.Run("link for unknown user", func(t *testing.T) {
		t.Parallel()

		svc, _ := newOAuthService(t, profile)
		ctx := context.Background()

		url, err := svc.AuthURL(ctx)
		require.NoError(t, err)

		_, err = svc.Link(ctx, uuid.New(), "good-code", stateFromURL(t, url))
		assert.ErrorIs(t, err, credential.ErrUserNotFound)
	})
}
