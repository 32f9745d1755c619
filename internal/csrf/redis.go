package csrf

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const tokenPrefix = "csrf:"

// RedisStore implements the Store interface using Redis
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis-backed token store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// SaveToken stores a token with expiration; Redis drops it when the TTL ends
func (s *RedisStore) SaveToken(ctx context.Context, token, action string, expiresIn time.Duration) error {
	if token == "" {
		return errors.New("empty token")
	}
	if err := s.client.Set(ctx, tokenPrefix+token, action, expiresIn).Err(); err != nil {
		return fmt.Errorf("storing token: %w", err)
	}
	return nil
}

// ConsumeToken atomically reads and deletes a token
func (s *RedisStore) ConsumeToken(ctx context.Context, token string) (string, error) {
	action, err := s.client.GetDel(ctx, tokenPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("consuming token: %w", err)
	}
	return action, nil
}

// CheckHealth verifies Redis connectivity
func (s *RedisStore) CheckHealth(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
