package credentials

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Settings hash field names
const (
	keyClientID     = "client_id"
	keyClientSecret = "client_secret"
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyOrganizerKey = "organizer_key"
	keyTokenExpires = "token_expires"

	// DefaultSettingsKey is the Redis hash holding the credential record
	DefaultSettingsKey = "gotowebinar:settings"
)

// RedisStore implements the Store interface using a Redis hash
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a new Redis-backed credential store.
// An empty key selects DefaultSettingsKey.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultSettingsKey
	}
	return &RedisStore{client: client, key: key}
}

// Load reads the settings hash. Fields other than the six credential keys
// are ignored.
func (s *RedisStore) Load(ctx context.Context) (State, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return State{}, fmt.Errorf("loading settings: %w", err)
	}

	state := State{
		ClientID:     fields[keyClientID],
		ClientSecret: fields[keyClientSecret],
		AccessToken:  fields[keyAccessToken],
		RefreshToken: fields[keyRefreshToken],
		OrganizerKey: fields[keyOrganizerKey],
	}

	if raw := fields[keyTokenExpires]; raw != "" {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return State{}, fmt.Errorf("parsing %s %q: %w", keyTokenExpires, raw, err)
		}
		state.TokenExpires = time.Unix(secs, 0)
	}

	return state, nil
}

// Save replaces the settings hash atomically
func (s *RedisStore) Save(ctx context.Context, state State) error {
	expires := ""
	if !state.TokenExpires.IsZero() {
		expires = strconv.FormatInt(state.TokenExpires.Unix(), 10)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key)
	pipe.HSet(ctx, s.key,
		keyClientID, state.ClientID,
		keyClientSecret, state.ClientSecret,
		keyAccessToken, state.AccessToken,
		keyRefreshToken, state.RefreshToken,
		keyOrganizerKey, state.OrganizerKey,
		keyTokenExpires, expires,
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

// Clear deletes the settings hash
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clearing settings: %w", err)
	}
	return nil
}

// CheckHealth verifies Redis connectivity
func (s *RedisStore) CheckHealth(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
