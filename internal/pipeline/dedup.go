package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultLockTTL bounds how long a crashed request can hold the token lock.
const DefaultLockTTL = 30 * time.Second

// TokenLock serializes request-nda calls for one confirmation token across
// processes and browser tabs. The in-process gate already blocks duplicates
// within one page view; this closes the cross-tab window.
type TokenLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTokenLock creates the lock. A nil client disables locking (single
// instance deployments); Acquire then always succeeds.
func NewTokenLock(client *redis.Client, ttl time.Duration) *TokenLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &TokenLock{client: client, ttl: ttl}
}

func lockKey(token string) string {
	return "pipeline:nda_lock:" + token
}

// Acquire takes the token lock. Returns false when another request holds it.
func (l *TokenLock) Acquire(ctx context.Context, token string) (bool, error) {
	if l == nil || l.client == nil {
		return true, nil
	}
	ok, err := l.client.SetNX(ctx, lockKey(token), 1, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("pipeline: acquire nda lock: %w", err)
	}
	return ok, nil
}

// Release frees the lock early. Expiry covers the crash case; errors here are
// ignorable.
func (l *TokenLock) Release(ctx context.Context, token string) {
	if l == nil || l.client == nil {
		return
	}
	l.client.Del(ctx, lockKey(token))
}
