package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	s, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		client.Close()
		s.Close()
	})
	return s, client
}

func TestSlidingWindowLimiter(t *testing.T) {
	s, client := setupRedis(t)
	ctx := context.Background()

	t.Run("LimitPerKey", func(t *testing.T) {
		l := NewSlidingWindowLimiter(client, "rl:buyer:", 3, time.Minute)

		for i := 0; i < 3; i++ {
			ok, err := l.Allow(ctx, "1")
			require.NoError(t, err)
			assert.True(t, ok, "request %d", i)
		}

		ok, err := l.Allow(ctx, "1")
		require.NoError(t, err)
		assert.False(t, ok)

		// another buyer has its own budget
		ok, err = l.Allow(ctx, "2")
		require.NoError(t, err)
		assert.True(t, ok)

		assert.True(t, s.Exists("rl:buyer:1"))
	})

	t.Run("RedisDown", func(t *testing.T) {
		broken := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
		defer broken.Close()

		l := NewSlidingWindowLimiter(broken, "rl:", 1, time.Minute)
		ok, err := l.Allow(ctx, "1")
		assert.Error(t, err)
		assert.False(t, ok)
	})
}

func TestTokenBucketLimiter(t *testing.T) {
	l := NewTokenBucketLimiter(rate.Every(time.Hour), 2)
	ctx := context.Background()

	ok, _ := l.Allow(ctx, "")
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "")
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "")
	assert.False(t, ok)
}

func TestChain(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()

	chain := Chain{
		NewTokenBucketLimiter(rate.Inf, 0),
		NewSlidingWindowLimiter(client, "rl:chain:", 1, time.Minute),
	}

	ok, err := chain.Allow(ctx, "buyer")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = chain.Allow(ctx, "buyer")
	require.NoError(t, err)
	assert.False(t, ok)
}
