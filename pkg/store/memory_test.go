package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authkit/pkg/store"
)

func newTestAdapter(t *testing.T) *store.MemoryAdapter {
	t.Helper()
	adapter := store.NewMemoryAdapter(0)
	t.Cleanup(func() { _ = adapter.Close() })
	return adapter
}

func newTestUser(email string) *store.User {
	now := time.Now()
	return &store.User{
		ID:        uuid.New(),
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemoryAdapter_Users(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		t.Parallel()
		adapter := newTestAdapter(t)

		user := newTestUser("a@example.com")
		require.NoError(t, adapter.CreateUser(ctx, user))

		got, err := adapter.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, user.Email, got.Email)

		got, err = adapter.GetUserByEmail(ctx, "A@Example.COM")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		t.Parallel()
		adapter := newTestAdapter(t)

		require.NoError(t, adapter.CreateUser(ctx, newTestUser("dup@example.com")))
		err := adapter.CreateUser(ctx, newTestUser("dup@example.com"))
		assert.ErrorIs(t, err, store.ErrConflict)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		adapter := newTestAdapter(t)

		_, err := adapter.GetUserByID(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("delete cascades accounts members and sessions", func(t *testing.T) {
		t.Parallel()
		adapter := newTestAdapter(t)

		user := newTestUser("cascade@example.com")
		require.NoError(t, adapter.CreateUser(ctx, user))

		account := &store.Account{
			ID:                uuid.New(),
			UserID:            user.ID,
			Provider:          store.ProviderCredential,
			ProviderAccountID: user.Email,
		}
		require.NoError(t, adapter.CreateAccount(ctx, account))

		session := &store.Session{
			ID:        uuid.New(),
			Token:     "cascade-token",
			UserID:    user.ID,
			CreatedAt: time.Now(),
			ExpiresAt: time.Now().Add(time.Hour),
		}
		require.NoError(t, adapter.CreateSession(ctx, session))

		org := &store.Organization{ID: uuid.New(), Name: "acme"}
		require.NoError(t, adapter.CreateOrganization(ctx, org))
		require.NoError(t, adapter.CreateMember(ctx, &store.Member{
			ID:     uuid.New(),
			OrgID:  org.ID,
			UserID: user.ID,
			Roles:  []string{"member"},
		}))

		require.NoError(t, adapter.DeleteUser(ctx, user.ID))

		_, err := adapter.GetAccountByProvider(ctx, store.ProviderCredential, user.Email)
		assert.ErrorIs(t, err, store.ErrNotFound)

		got, err := adapter.GetSessionByToken(ctx, "cascade-token")
		require.NoError(t, err)
		assert.True(t, got.Revoked)

		_, err = adapter.GetMember(ctx, user.ID, org.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestMemoryAdapter_Accounts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("provider binding is unique", func(t *testing.T) {
		t.Parallel()
		adapter := newTestAdapter(t)

		account := &store.Account{
			ID:                uuid.New(),
			UserID:            uuid.New(),
			Provider:          "google",
			ProviderAccountID: "g-123",
		}
		require.NoError(t, adapter.CreateAccount(ctx, account))

		dup := &store.Account{
			ID:                uuid.New(),
			UserID:            uuid.New(),
			Provider:          "google",
			ProviderAccountID: "g-123",
		}
		assert.ErrorIs(t, adapter.CreateAccount(ctx, dup), store.ErrConflict)
	})

	t.Run("list by user", func(t *testing.T) {
		t.Parallel()
		adapter := newTestAdapter(t)

		userID := uuid.New()
		for _, provider := range []string{"google", "github"} {
			require.NoError(t, adapter.CreateAccount(ctx, &store.Account{
				ID:                uuid.New(),
				UserID:            userID,
				Provider:          provider,
				ProviderAccountID: provider + "-1",
			}))
		}

		accounts, err := adapter.ListAccountsByUser(ctx, userID)
		require.NoError(t, err)
		assert.Len(t, accounts, 2)
	})
}

func TestMemoryAdapter_RotateSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("rotation invalidates old token", func(t *testing.T) {
		t.Parallel()
		adapter := newTestAdapter(t)

		session := &store.Session{
			ID:        uuid.New(),
			Token:     "old-token",
			UserID:    uuid.New(),
			CreatedAt: time.Now(),
			ExpiresAt: time.Now().Add(time.Hour),
		}
		require.NoError(t, adapter.CreateSession(ctx, session))

		rotated, err := adapter.RotateSession(ctx, "old-token", "new-token", time.Now().Add(2*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, "new-token", rotated.Token)
		assert.Equal(t, 1, rotated.Rotations)

		old, err := adapter.GetSessionByToken(ctx, "old-token")
		require.NoError(t, err)
		assert.True(t, old.Revoked)
	})

	t.Run("rotating a consumed token fails", func(t *testing.T) {
		t.Parallel()
		adapter := newTestAdapter(t)

		session := &store.Session{
			ID:        uuid.New(),
			Token:     "once",
			UserID:    uuid.New(),
			CreatedAt: time.Now(),
			ExpiresAt: time.Now().Add(time.Hour),
		}
		require.NoError(t, adapter.CreateSession(ctx, session))

		_, err := adapter.RotateSession(ctx, "once", "next", time.Now().Add(time.Hour))
		require.NoError(t, err)

		_, err = adapter.RotateSession(ctx, "once", "other", time.Now().Add(time.Hour))
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("concurrent rotations have exactly one winner", func(t *testing.T) {
		t.Parallel()
		adapter := newTestAdapter(t)

		session := &store.Session{
			ID:        uuid.New(),
			Token:     "contended",
			UserID:    uuid.New(),
			CreatedAt: time.Now(),
			ExpiresAt: time.Now().Add(time.Hour),
		}
		require.NoError(t, adapter.CreateSession(ctx, session))

		const workers = 20
		var wg sync.WaitGroup
		var mu sync.Mutex
		winners := 0

		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := adapter.RotateSession(ctx, "contended", uuid.NewString(), time.Now().Add(time.Hour))
				if err == nil {
					mu.Lock()
					winners++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, winners)
	})
}

func TestMemoryAdapter_RevokeSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	adapter := newTestAdapter(t)

	session := &store.Session{
		ID:        uuid.New(),
		Token:     "revoke-me",
		UserID:    uuid.New(),
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, adapter.CreateSession(ctx, session))

	require.NoError(t, adapter.RevokeSession(ctx, "revoke-me"))
	require.NoError(t, adapter.RevokeSession(ctx, "revoke-me"))
	require.NoError(t, adapter.RevokeSession(ctx, "never-existed"))

	got, err := adapter.GetSessionByToken(ctx, "revoke-me")
	require.NoError(t, err)
	assert.True(t, got.Revoked)
}

func TestMemoryAdapter_ConsumeVerification(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("consume deletes the record", func(t *testing.T) {
		t.Parallel()
		adapter := newTestAdapter(t)

		verification := &store.Verification{
			ID:         uuid.New(),
			Value:      "one-shot",
			Identifier: "magic_link:a@example.com",
			ExpiresAt:  time.Now().Add(15 * time.Minute),
			CreatedAt:  time.Now(),
		}
		require.NoError(t, adapter.CreateVerification(ctx, verification))

		got, err := adapter.ConsumeVerification(ctx, "one-shot")
		require.NoError(t, err)
		assert.Equal(t, verification.Identifier, got.Identifier)

		_, err = adapter.ConsumeVerification(ctx, "one-shot")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("concurrent redemption has exactly one winner", func(t *testing.T) {
		t.Parallel()
		adapter := newTestAdapter(t)

		require.NoError(t, adapter.CreateVerification(ctx, &store.Verification{
			ID:         uuid.New(),
			Value:      "contended",
			Identifier: "magic_link:b@example.com",
			ExpiresAt:  time.Now().Add(time.Minute),
			CreatedAt:  time.Now(),
		}))

		const workers = 20
		var wg sync.WaitGroup
		var mu sync.Mutex
		winners := 0

		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := adapter.ConsumeVerification(ctx, "contended"); err == nil {
					mu.Lock()
					winners++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, winners)
	})
}

func TestMemoryAdapter_Organizations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("one member record per user per org", func(t *testing.T) {
		t.Parallel()
		adapter := newTestAdapter(t)

		org := &store.Organization{ID: uuid.New(), Name: "acme"}
		require.NoError(t, adapter.CreateOrganization(ctx, org))

		userID := uuid.New()
		require.NoError(t, adapter.CreateMember(ctx, &store.Member{
			ID:     uuid.New(),
			OrgID:  org.ID,
			UserID: userID,
			Roles:  []string{"member"},
		}))

		err := adapter.CreateMember(ctx, &store.Member{
			ID:     uuid.New(),
			OrgID:  org.ID,
			UserID: userID,
			Roles:  []string{"admin"},
		})
		assert.ErrorIs(t, err, store.ErrConflict)
	})

	t.Run("delete org cascades members", func(t *testing.T) {
		t.Parallel()
		adapter := newTestAdapter(t)

		org := &store.Organization{ID: uuid.New(), Name: "doomed"}
		require.NoError(t, adapter.CreateOrganization(ctx, org))

		userID := uuid.New()
		require.NoError(t, adapter.CreateMember(ctx, &store.Member{
			ID:     uuid.New(),
			OrgID:  org.ID,
			UserID: userID,
			Roles:  []string{"owner"},
		}))

		require.NoError(t, adapter.DeleteOrganization(ctx, org.ID))

		_, err := adapter.GetMember(ctx, userID, org.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestMemoryAdapter_ExpirySweep(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	adapter := newTestAdapter(t)

	require.NoError(t, adapter.CreateSession(ctx, &store.Session{
		ID:        uuid.New(),
		Token:     "stale",
		UserID:    uuid.New(),
		CreatedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}))
	require.NoError(t, adapter.CreateVerification(ctx, &store.Verification{
		ID:         uuid.New(),
		Value:      "stale",
		Identifier: "x",
		ExpiresAt:  time.Now().Add(-time.Minute),
	}))

	require.NoError(t, adapter.DeleteExpiredSessions(ctx))
	require.NoError(t, adapter.DeleteExpiredVerifications(ctx))

	_, err := adapter.GetSessionByToken(ctx, "stale")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = adapter.ConsumeVerification(ctx, "stale")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
