package statestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "oauth_state:"

// RedisStore keeps states in Redis with native TTL expiry. GETDEL gives the
// atomic check-and-remove that single-use states require.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an established Redis client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Connect establishes a Redis connection from a URL and verifies it with a
// ping before use.
func Connect(ctx context.Context, url string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("statestore: parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("statestore: redis ping: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Save(ctx context.Context, state string, ttl time.Duration) error {
	if err := s.client.Set(ctx, keyPrefix+state, "1", ttl).Err(); err != nil {
		return fmt.Errorf("statestore: save state: %w", err)
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, state string) error {
	err := s.client.GetDel(ctx, keyPrefix+state).Err()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("statestore: consume state: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
