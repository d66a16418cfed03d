package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

const leasePrefix = "finpush:lease:"

// RedisStore holds short-lived coordination state shared between instances.
type RedisStore struct {
	client *redis.Client
	owner  string
}

func NewRedisStore(opts *redis.Options) *RedisStore {
	return NewRedisStoreFromClient(redis.NewClient(opts))
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	host, _ := os.Hostname()
	return &RedisStore{
		client: client,
		owner:  fmt.Sprintf("%s:%d", host, os.Getpid()),
	}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// AcquireLease claims key for ttl. It returns false if another holder has it.
// Leases are never released early; they expire.
func (s *RedisStore) AcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, leasePrefix+key, s.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	return ok, nil
}

// LeaseHolder returns the current holder of key, or "" if free.
func (s *RedisStore) LeaseHolder(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, leasePrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}
