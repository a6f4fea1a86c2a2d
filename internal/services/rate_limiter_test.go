package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCounterStore struct{}

func (failingCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	return 0, errors.New("store unavailable")
}

func TestRateLimiterAllowsWithinLimit(t *testing.T) {
	store := NewMemoryCounterStore(0)
	limiter := NewRateLimiter(store, time.Minute, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.True(t, limiter.Allow(ctx, "pk_test", 0), "request %d should be allowed", i+1)
	}
	assert.False(t, limiter.Allow(ctx, "pk_test", 0), "sixth request should be rejected")
}

func TestRateLimiterPerClientOverride(t *testing.T) {
	store := NewMemoryCounterStore(0)
	limiter := NewRateLimiter(store, time.Minute, 5)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.True(t, limiter.Allow(ctx, "pk_low", 2))
	}
	assert.False(t, limiter.Allow(ctx, "pk_low", 2))

	// other keys are unaffected
	assert.True(t, limiter.Allow(ctx, "pk_other", 2))
}

func TestRateLimiterWindowReset(t *testing.T) {
	store := NewMemoryCounterStore(0)
	current := time.Now()
	store.now = func() time.Time { return current }

	limiter := NewRateLimiter(store, time.Minute, 1)
	ctx := context.Background()

	require.True(t, limiter.Allow(ctx, "pk_test", 0))
	require.False(t, limiter.Allow(ctx, "pk_test", 0))

	current = current.Add(time.Minute + time.Second)
	assert.True(t, limiter.Allow(ctx, "pk_test", 0), "new window should start fresh")
}

func TestRateLimiterFailsOpen(t *testing.T) {
	limiter := NewRateLimiter(failingCounterStore{}, time.Minute, 1)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		assert.True(t, limiter.Allow(ctx, "pk_test", 0))
	}
}

func TestMemoryCounterStoreConcurrentIncr(t *testing.T) {
	store := NewMemoryCounterStore(0)
	ctx := context.Background()

	const goroutines = 50
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			_, err := store.Incr(ctx, "shared", time.Minute)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	count, err := store.Incr(ctx, "shared", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(goroutines+1), count)
}

func TestMemoryCounterStoreSweep(t *testing.T) {
	store := NewMemoryCounterStore(0)
	current := time.Now()
	store.now = func() time.Time { return current }
	ctx := context.Background()

	_, err := store.Incr(ctx, "old", time.Minute)
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	_, err = store.Incr(ctx, "fresh", time.Minute)
	require.NoError(t, err)

	store.Sweep(time.Minute)
	assert.Equal(t, 1, store.Len(), "expired entry should be swept")
}
