package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/otpeak/otp-service/internal/logging"
	"github.com/otpeak/otp-service/internal/observability"
	"github.com/otpeak/otp-service/internal/redisclient"
	"go.uber.org/zap"
)

// CounterStore is the shared counter behind the rate limiter. Incr bumps the
// fixed-window counter for key and returns the post-increment count; a new
// window starts at 1.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimiter is a fixed-window request limiter keyed by caller identity
type RateLimiter struct {
	store        CounterStore
	window       time.Duration
	defaultLimit int
}

// NewRateLimiter creates a rate limiter over the given counter store
func NewRateLimiter(store CounterStore, window time.Duration, defaultLimit int) *RateLimiter {
	return &RateLimiter{
		store:        store,
		window:       window,
		defaultLimit: defaultLimit,
	}
}

// Allow reports whether a request for key is within its window budget.
// limit <= 0 falls back to the global default. Store failures allow the
// request: an unreachable counter store must not take issuance down with it.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int) bool {
	if limit <= 0 {
		limit = rl.defaultLimit
	}

	count, err := rl.store.Incr(ctx, key, rl.window)
	if err != nil {
		logging.Logger.Warn("rate limit counter unavailable, allowing request",
			zap.Error(err))
		return true
	}

	if count > int64(limit) {
		observability.RateLimitRejections.Inc()
		return false
	}
	return true
}

type counterEntry struct {
	count       int64
	windowStart time.Time
}

// MemoryCounterStore is the process-local CounterStore for single-instance
// deployments. Entries are swept periodically so the key space stays bounded.
type MemoryCounterStore struct {
	mu      sync.Mutex
	entries map[string]*counterEntry
	now     func() time.Time
	done    chan struct{}
}

// NewMemoryCounterStore creates an in-memory counter store and starts its
// sweeper. sweepInterval <= 0 disables sweeping.
func NewMemoryCounterStore(sweepInterval time.Duration) *MemoryCounterStore {
	s := &MemoryCounterStore{
		entries: make(map[string]*counterEntry),
		now:     time.Now,
		done:    make(chan struct{}),
	}

	if sweepInterval > 0 {
		go func() {
			ticker := time.NewTicker(sweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					s.Sweep(sweepInterval)
				case <-s.done:
					return
				}
			}
		}()
	}

	return s
}

// Incr implements CounterStore
func (s *MemoryCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.entries[key]
	if !ok || now.Sub(entry.windowStart) > window {
		s.entries[key] = &counterEntry{count: 1, windowStart: now}
		return 1, nil
	}

	entry.count++
	return entry.count, nil
}

// Sweep removes entries whose window started before the cutoff
func (s *MemoryCounterStore) Sweep(olderThan time.Duration) {
	cutoff := s.now().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.entries {
		if entry.windowStart.Before(cutoff) {
			delete(s.entries, key)
		}
	}
}

// Len returns the number of tracked keys
func (s *MemoryCounterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop stops the sweeper goroutine
func (s *MemoryCounterStore) Stop() {
	close(s.done)
}

// RedisCounterStore is the shared CounterStore for multi-instance
// deployments: the window bucket lives in Redis, so every instance sees the
// same count.
type RedisCounterStore struct {
	client *redisclient.Client
}

// NewRedisCounterStore creates a Redis-backed counter store
func NewRedisCounterStore(client *redisclient.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

// Incr implements CounterStore. The key is bucketed by window so counters
// reset when the window rolls over; the first increment arms the TTL.
func (s *RedisCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	bucket := time.Now().UnixMilli() / window.Milliseconds()
	bucketKey := fmt.Sprintf("ratelimit:%s:%d", key, bucket)

	count, err := s.client.Incr(ctx, bucketKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, bucketKey, window).Err(); err != nil {
			logging.Logger.Warn("failed to set rate limit counter TTL",
				zap.String("key", bucketKey),
				zap.Error(err))
		}
	}
	return count, nil
}
