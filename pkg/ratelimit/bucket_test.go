package ratelimit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authkit/pkg/ratelimit"
)

func newBucket(t *testing.T, cfg ratelimit.Config) *ratelimit.Bucket {
	t.Helper()

	store := ratelimit.NewMemoryStore(ratelimit.WithCleanupInterval(0))
	t.Cleanup(func() { _ = store.Close() })

	bucket, err := ratelimit.NewBucket(store, cfg)
	require.NoError(t, err)
	return bucket
}

func TestNewBucket_Validation(t *testing.T) {
	t.Parallel()

	store := ratelimit.NewMemoryStore(ratelimit.WithCleanupInterval(0))
	t.Cleanup(func() { _ = store.Close() })

	tests := []struct {
		name string
		cfg  ratelimit.Config
	}{
		{"zero capacity", ratelimit.Config{Capacity: 0, RefillRate: 1, RefillInterval: time.Second}},
		{"zero refill rate", ratelimit.Config{Capacity: 5, RefillRate: 0, RefillInterval: time.Second}},
		{"zero interval", ratelimit.Config{Capacity: 5, RefillRate: 1, RefillInterval: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ratelimit.NewBucket(store, tt.cfg)
			assert.ErrorIs(t, err, ratelimit.ErrInvalidConfig)
		})
	}
}

func TestBucket_Allow(t *testing.T) {
	t.Parallel()

	t.Run("exhausts capacity then denies", func(t *testing.T) {
		t.Parallel()

		bucket := newBucket(t, ratelimit.Config{Capacity: 3, RefillRate: 1, RefillInterval: time.Minute})
		ctx := context.Background()

		for i := range 3 {
			result, err := bucket.Allow(ctx, "ip:1.2.3.4")
			require.NoError(t, err)
			assert.True(t, result.Allowed(), "attempt %d should pass", i)
		}

		result, err := bucket.Allow(ctx, "ip:1.2.3.4")
		require.NoError(t, err)
		assert.False(t, result.Allowed())
		assert.Positive(t, result.RetryAfter())
	})

	t.Run("keys are independent", func(t *testing.T) {
		t.Parallel()

		bucket := newBucket(t, ratelimit.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Minute})
		ctx := context.Background()

		result, err := bucket.Allow(ctx, "ip:10.0.0.1")
		require.NoError(t, err)
		assert.True(t, result.Allowed())

		result, err = bucket.Allow(ctx, "ip:10.0.0.1")
		require.NoError(t, err)
		assert.False(t, result.Allowed())

		result, err = bucket.Allow(ctx, "ip:10.0.0.2")
		require.NoError(t, err)
		assert.True(t, result.Allowed())
	})

	t.Run("refills over time", func(t *testing.T) {
		t.Parallel()

		bucket := newBucket(t, ratelimit.Config{Capacity: 1, RefillRate: 1, RefillInterval: 20 * time.Millisecond})
		ctx := context.Background()

		result, err := bucket.Allow(ctx, "k")
		require.NoError(t, err)
		require.True(t, result.Allowed())

		result, err = bucket.Allow(ctx, "k")
		require.NoError(t, err)
		require.False(t, result.Allowed())

		time.Sleep(30 * time.Millisecond)

		result, err = bucket.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, result.Allowed())
	})

	t.Run("reset restores capacity", func(t *testing.T) {
		t.Parallel()

		bucket := newBucket(t, ratelimit.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Minute})
		ctx := context.Background()

		_, err := bucket.Allow(ctx, "k")
		require.NoError(t, err)

		require.NoError(t, bucket.Reset(ctx, "k"))

		result, err := bucket.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, result.Allowed())
	})

	t.Run("rejects non-positive token counts", func(t *testing.T) {
		t.Parallel()

		bucket := newBucket(t, ratelimit.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Minute})
		_, err := bucket.AllowN(context.Background(), "k", 0)
		assert.ErrorIs(t, err, ratelimit.ErrInvalidTokenCount)
	})
}

func TestBucket_Concurrent(t *testing.T) {
	t.Parallel()

	bucket := newBucket(t, ratelimit.Config{Capacity: 10, RefillRate: 1, RefillInterval: time.Hour})
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	allowed := make([]bool, workers)
	for i := range workers {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			result, err := bucket.Allow(ctx, "shared")
			if err == nil && result.Allowed() {
				allowed[n] = true
			}
		}(i)
	}
	wg.Wait()

	var count int
	for _, ok := range allowed {
		if ok {
			count++
		}
	}
	assert.Equal(t, 10, count)
}

func TestBucket_Status(t *testing.T) {
	t.Parallel()

	bucket := newBucket(t, ratelimit.Config{Capacity: 5, RefillRate: 1, RefillInterval: time.Minute})
	ctx := context.Background()

	status, err := bucket.Status(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 5, status.Remaining)

	_, err = bucket.Allow(ctx, "k")
	require.NoError(t, err)

	status, err = bucket.Status(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 4, status.Remaining)
}
