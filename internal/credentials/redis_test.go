package credentials

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// newTestRedis connects to REDIS_URL and skips when it is not set
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		t.Fatalf("parsing REDIS_URL: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	return client
}

func TestRedisStore_RoundTrip(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()
	key := "test:settings:" + uuid.NewString()
	store := NewRedisStore(client, key)
	t.Cleanup(func() { _ = client.Del(ctx, key).Err() })

	empty, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() on empty store error = %v", err)
	}
	if diff := cmp.Diff(State{}, empty); diff != "" {
		t.Errorf("expected zero state (-want +got):\n%s", diff)
	}

	state := State{
		ClientID:     "id",
		ClientSecret: "secret",
		AccessToken:  "access",
		RefreshToken: "refresh",
		OrganizerKey: "org",
		TokenExpires: time.Unix(1714564800, 0),
	}
	if err := store.Save(ctx, state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Unknown fields written by other tools are ignored.
	if err := client.HSet(ctx, key, "legacy_field", "x").Err(); err != nil {
		t.Fatalf("HSet() error = %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(state, got); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	cleared, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() after Clear error = %v", err)
	}
	if cleared.IsReady() {
		t.Error("expected cleared state not to be ready")
	}
}

func TestRedisStore_CheckHealth(t *testing.T) {
	client := newTestRedis(t)
	store := NewRedisStore(client, "")
	if err := store.CheckHealth(context.Background()); err != nil {
		t.Errorf("CheckHealth() error = %v", err)
	}
}
