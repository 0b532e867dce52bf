// Package dedupe remembers which side effects already ran so listeners can
// drop redelivered events. A local bigcache answers repeated checks on the
// same instance; Redis SETNX is the shared source of truth.
package dedupe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/redis/go-redis/v9"

	"fanhub/pkg/log"
)

// Config dedupe store configuration
type Config struct {
	KeyPrefix string
	TTL       time.Duration
	LocalTTL  time.Duration
}

// Store is a two level claim store
type Store struct {
	local  *bigcache.BigCache
	client redis.Cmdable
	config Config
}

// NewStore creates a store backed by client
func NewStore(ctx context.Context, client redis.Cmdable, config Config) (*Store, error) {
	if config.TTL <= 0 {
		config.TTL = 7 * 24 * time.Hour
	}
	if config.LocalTTL <= 0 {
		config.LocalTTL = 10 * time.Minute
	}

	cacheConfig := bigcache.DefaultConfig(config.LocalTTL)
	cacheConfig.Verbose = false
	local, err := bigcache.New(ctx, cacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create local cache: %w", err)
	}

	return &Store{
		local:  local,
		client: client,
		config: config,
	}, nil
}

// Claim marks key as handled. It returns true only for the first caller;
// everyone else should skip the side effect.
func (s *Store) Claim(ctx context.Context, key string) (bool, error) {
	if _, err := s.local.Get(key); err == nil {
		return false, nil
	} else if !errors.Is(err, bigcache.ErrEntryNotFound) {
		log.WithError(err).WithField("key", key).Warn("Local dedupe cache read failed")
	}

	ok, err := s.client.SetNX(ctx, s.config.KeyPrefix+key, time.Now().Unix(), s.config.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe claim %s: %w", key, err)
	}

	if err := s.local.Set(key, []byte{1}); err != nil {
		log.WithError(err).WithField("key", key).Warn("Local dedupe cache write failed")
	}
	return ok, nil
}

// Release forgets a claim so the side effect can run again, used when the
// claimed work failed
func (s *Store) Release(ctx context.Context, key string) error {
	if err := s.local.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		log.WithError(err).WithField("key", key).Warn("Local dedupe cache delete failed")
	}
	return s.client.Del(ctx, s.config.KeyPrefix+key).Err()
}

// Close releases the local cache
func (s *Store) Close() error {
	return s.local.Close()
}
