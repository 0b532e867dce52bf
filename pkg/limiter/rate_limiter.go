package limiter

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimiter rate limiter interface
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])
	local member = ARGV[5]

	redis.call('ZREMRANGEBYSCORE', key, 0, window_start)

	local current = redis.call('ZCARD', key)
	if current < limit then
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, window_ms)
		return 1
	end
	return 0
`)

// SlidingWindowLimiter allows limit requests per key within any window,
// counted in a Redis sorted set so every instance shares the budget.
type SlidingWindowLimiter struct {
	client redis.Cmdable
	prefix string
	limit  int
	window time.Duration
	seq    atomic.Uint64
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter
func NewSlidingWindowLimiter(client redis.Cmdable, prefix string, limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
	}
}

// Allow checks if the request is allowed
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now().UnixMilli()
	member := fmt.Sprintf("%d-%d", now, l.seq.Add(1))

	result, err := slidingWindowScript.Run(ctx, l.client,
		[]string{l.prefix + key},
		now,
		now-l.window.Milliseconds(),
		l.limit,
		l.window.Milliseconds(),
		member,
	).Int()
	if err != nil {
		return false, fmt.Errorf("sliding window %s: %w", key, err)
	}

	return result == 1, nil
}

// TokenBucketLimiter is a process-local limiter shared by all keys
type TokenBucketLimiter struct {
	limiter *rate.Limiter
}

// NewTokenBucketLimiter creates a new token bucket rate limiter
func NewTokenBucketLimiter(r rate.Limit, b int) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		limiter: rate.NewLimiter(r, b),
	}
}

// Allow checks if the request is allowed
func (l *TokenBucketLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return l.limiter.Allow(), nil
}

// Chain allows a request only when every limiter allows it. Limiters are
// consulted in order and evaluation stops at the first refusal.
type Chain []RateLimiter

// Allow checks if the request is allowed
func (c Chain) Allow(ctx context.Context, key string) (bool, error) {
	for _, l := range c {
		ok, err := l.Allow(ctx, key)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
