package registration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore connects to REDIS_URL under a random prefix and skips when
// Redis is not available
func newTestStore(t *testing.T) (*RedisStore, *redis.Client) {
	t.Helper()

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	prefix := "test:" + uuid.NewString() + ":"
	t.Cleanup(func() {
		keys, _ := client.Keys(context.Background(), prefix+"*").Result()
		if len(keys) > 0 {
			_ = client.Del(context.Background(), keys...).Err()
		}
	})
	return NewRedisStore(client, prefix), client
}

func TestRedisStore_Feeds(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first := testFeed()
	first.CreatedAt = created
	second := testFeed()
	second.ID = "feed-2"
	second.CreatedAt = created.Add(time.Minute)
	second.Condition = &Condition{Rules: []Rule{{FieldID: "3", Operator: OpContains, Value: "@example.com"}}}

	require.NoError(t, store.SaveFeed(ctx, second))
	require.NoError(t, store.SaveFeed(ctx, first))

	got, err := store.GetFeed(ctx, "feed-2")
	require.NoError(t, err)
	assert.Equal(t, second, got)

	feeds, err := store.ListFeeds(ctx, "7")
	require.NoError(t, err)
	require.Len(t, feeds, 2)
	assert.Equal(t, "feed-1", feeds[0].ID)
	assert.Equal(t, "feed-2", feeds[1].ID)

	// Moving a feed to another form updates both indexes
	second.FormID = "8"
	require.NoError(t, store.SaveFeed(ctx, second))
	feeds, err = store.ListFeeds(ctx, "7")
	require.NoError(t, err)
	assert.Len(t, feeds, 1)
	feeds, err = store.ListFeeds(ctx, "")
	require.NoError(t, err)
	assert.Len(t, feeds, 2)

	require.NoError(t, store.DeleteFeed(ctx, "feed-1"))
	_, err = store.GetFeed(ctx, "feed-1")
	assert.ErrorIs(t, err, ErrFeedNotFound)
	assert.ErrorIs(t, store.DeleteFeed(ctx, "feed-1"), ErrFeedNotFound)

	empty, err := store.ListFeeds(ctx, "7")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRedisStore_FeedErrors(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < maxFeedErrors+5; i++ {
		report := FeedError{EntryID: "e", Message: "failure", Recorded: at.Add(time.Duration(i) * time.Second)}
		require.NoError(t, store.AddFeedError(ctx, "feed-1", report))
	}

	n, err := client.LLen(ctx, store.errorsKey("feed-1")).Result()
	require.NoError(t, err)
	assert.EqualValues(t, maxFeedErrors, n)

	latest, err := store.FeedErrors(ctx, "feed-1", 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.True(t, latest[0].Recorded.After(latest[1].Recorded))
	assert.True(t, latest[0].Recorded.Equal(at.Add(time.Duration(maxFeedErrors+4)*time.Second)))
}

func TestRedisStore_CheckHealth(t *testing.T) {
	store, _ := newTestStore(t)
	assert.NoError(t, store.CheckHealth(context.Background()))
}
