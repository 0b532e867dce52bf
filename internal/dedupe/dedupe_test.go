package dedupe

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})

	store, err := NewStore(context.Background(), client, Config{KeyPrefix: "dedupe:", TTL: time.Hour})
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
		client.Close()
		s.Close()
	})
	return store, s, client
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("FirstClaimWins", func(t *testing.T) {
		store, s, _ := newTestStore(t)

		ok, err := store.Claim(ctx, "like:1")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.Claim(ctx, "like:1")
		require.NoError(t, err)
		assert.False(t, ok)

		assert.True(t, s.Exists("dedupe:like:1"))
		assert.Equal(t, time.Hour, s.TTL("dedupe:like:1"))
	})

	t.Run("SharedAcrossInstances", func(t *testing.T) {
		store, _, client := newTestStore(t)

		other, err := NewStore(ctx, client, Config{KeyPrefix: "dedupe:", TTL: time.Hour})
		require.NoError(t, err)
		defer other.Close()

		ok, err := store.Claim(ctx, "mail:2")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = other.Claim(ctx, "mail:2")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Release", func(t *testing.T) {
		store, _, _ := newTestStore(t)

		ok, err := store.Claim(ctx, "mail:3")
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, store.Release(ctx, "mail:3"))

		ok, err = store.Claim(ctx, "mail:3")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("RedisDown", func(t *testing.T) {
		broken := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
		defer broken.Close()

		store, err := NewStore(ctx, broken, Config{KeyPrefix: "dedupe:"})
		require.NoError(t, err)
		defer store.Close()

		ok, err := store.Claim(ctx, "like:4")
		assert.Error(t, err)
		assert.False(t, ok)
	})
}
