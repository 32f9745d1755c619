package registration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultKeyPrefix namespaces feed keys
	DefaultKeyPrefix = "gotowebinar:"

	feedPrefix     = "feed:"
	feedIndexKey   = "feeds"
	formFeedPrefix = "form:"
	errorSuffix    = ":errors"

	// maxFeedErrors bounds the stored error reports per feed
	maxFeedErrors = 100
)

// RedisStore implements FeedStore and ErrorLog using Redis
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis-backed feed store.
// An empty prefix selects DefaultKeyPrefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) feedKey(id string) string {
	return s.prefix + feedPrefix + id
}

func (s *RedisStore) errorsKey(id string) string {
	return s.feedKey(id) + errorSuffix
}

func (s *RedisStore) indexKey() string {
	return s.prefix + feedIndexKey
}

func (s *RedisStore) formFeedsKey(formID string) string {
	return s.prefix + formFeedPrefix + formID + ":feeds"
}

// CheckHealth verifies Redis connectivity
func (s *RedisStore) CheckHealth(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// SaveFeed stores a feed and indexes it by form
func (s *RedisStore) SaveFeed(ctx context.Context, feed *Feed) error {
	if feed.ID == "" {
		return errors.New("feed id is required")
	}

	// Drop the old form index entry when a feed moves between forms
	previous, err := s.GetFeed(ctx, feed.ID)
	if err != nil && !errors.Is(err, ErrFeedNotFound) {
		return err
	}

	data, err := json.Marshal(feed)
	if err != nil {
		return fmt.Errorf("marshaling feed: %w", err)
	}

	pipe := s.client.TxPipeline()
	if previous != nil && previous.FormID != feed.FormID {
		pipe.SRem(ctx, s.formFeedsKey(previous.FormID), feed.ID)
	}
	pipe.Set(ctx, s.feedKey(feed.ID), data, 0)
	pipe.SAdd(ctx, s.indexKey(), feed.ID)
	pipe.SAdd(ctx, s.formFeedsKey(feed.FormID), feed.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving feed: %w", err)
	}
	return nil
}

// GetFeed retrieves a feed
func (s *RedisStore) GetFeed(ctx context.Context, id string) (*Feed, error) {
	data, err := s.client.Get(ctx, s.feedKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrFeedNotFound
		}
		return nil, fmt.Errorf("getting feed: %w", err)
	}

	var feed Feed
	if err := json.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("unmarshaling feed: %w", err)
	}
	return &feed, nil
}

// ListFeeds returns feeds ordered by creation time
func (s *RedisStore) ListFeeds(ctx context.Context, formID string) ([]*Feed, error) {
	indexKey := s.indexKey()
	if formID != "" {
		indexKey = s.formFeedsKey(formID)
	}

	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}
	if len(ids) == 0 {
		return []*Feed{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.feedKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("loading feeds: %w", err)
	}

	feeds := make([]*Feed, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // deleted between SMEMBERS and MGET
		}
		var feed Feed
		if err := json.Unmarshal([]byte(raw), &feed); err != nil {
			return nil, fmt.Errorf("unmarshaling feed: %w", err)
		}
		feeds = append(feeds, &feed)
	}

	sort.Slice(feeds, func(i, j int) bool {
		if feeds[i].CreatedAt.Equal(feeds[j].CreatedAt) {
			return feeds[i].ID < feeds[j].ID
		}
		return feeds[i].CreatedAt.Before(feeds[j].CreatedAt)
	})
	return feeds, nil
}

// DeleteFeed removes a feed, its index entries and its error reports
func (s *RedisStore) DeleteFeed(ctx context.Context, id string) error {
	feed, err := s.GetFeed(ctx, id)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.feedKey(id), s.errorsKey(id))
	pipe.SRem(ctx, s.indexKey(), id)
	pipe.SRem(ctx, s.formFeedsKey(feed.FormID), id)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting feed: %w", err)
	}
	return nil
}

// AddFeedError pushes a report and trims the list to the newest reports
func (s *RedisStore) AddFeedError(ctx context.Context, feedID string, report FeedError) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling feed error: %w", err)
	}

	key := s.errorsKey(feedID)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, maxFeedErrors-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording feed error: %w", err)
	}
	return nil
}

// FeedErrors returns up to limit reports, newest first
func (s *RedisStore) FeedErrors(ctx context.Context, feedID string, limit int) ([]FeedError, error) {
	if limit <= 0 || limit > maxFeedErrors {
		limit = maxFeedErrors
	}

	raw, err := s.client.LRange(ctx, s.errorsKey(feedID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading feed errors: %w", err)
	}

	reports := make([]FeedError, 0, len(raw))
	for _, r := range raw {
		var report FeedError
		if err := json.Unmarshal([]byte(r), &report); err != nil {
			return nil, fmt.Errorf("unmarshaling feed error: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}
