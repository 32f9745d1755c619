package test

import (
	"context"
	"sort"
	"sync"

	"github.com/wrale/gotowebinar-bridge/internal/registration"
)

// MemoryFeedStore implements registration.FeedStore and registration.ErrorLog
type MemoryFeedStore struct {
	mu     sync.Mutex
	feeds  map[string]*registration.Feed
	errors map[string][]registration.FeedError

	// Err, when set, fails every call
	Err error
}

var (
	_ registration.FeedStore = (*MemoryFeedStore)(nil)
	_ registration.ErrorLog  = (*MemoryFeedStore)(nil)
)

// NewMemoryFeedStore creates a store holding feeds
func NewMemoryFeedStore(feeds ...*registration.Feed) *MemoryFeedStore {
	s := &MemoryFeedStore{
		feeds:  make(map[string]*registration.Feed),
		errors: make(map[string][]registration.FeedError),
	}
	for _, f := range feeds {
		s.feeds[f.ID] = f
	}
	return s
}

// SaveFeed stores a copy of feed
func (s *MemoryFeedStore) SaveFeed(ctx context.Context, feed *registration.Feed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	cp := *feed
	s.feeds[feed.ID] = &cp
	return nil
}

// GetFeed returns a copy of the stored feed
func (s *MemoryFeedStore) GetFeed(ctx context.Context, id string) (*registration.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	f, ok := s.feeds[id]
	if !ok {
		return nil, registration.ErrFeedNotFound
	}
	cp := *f
	return &cp, nil
}

// ListFeeds returns feeds sorted by id
func (s *MemoryFeedStore) ListFeeds(ctx context.Context, formID string) ([]*registration.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := []*registration.Feed{}
	for _, f := range s.feeds {
		if formID == "" || f.FormID == formID {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteFeed removes a feed and its errors
func (s *MemoryFeedStore) DeleteFeed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.feeds[id]; !ok {
		return registration.ErrFeedNotFound
	}
	delete(s.feeds, id)
	delete(s.errors, id)
	return nil
}

// AddFeedError prepends a report
func (s *MemoryFeedStore) AddFeedError(ctx context.Context, feedID string, report registration.FeedError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.errors[feedID] = append([]registration.FeedError{report}, s.errors[feedID]...)
	return nil
}

// FeedErrors returns up to limit reports, newest first
func (s *MemoryFeedStore) FeedErrors(ctx context.Context, feedID string, limit int) ([]registration.FeedError, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	reports := append([]registration.FeedError{}, s.errors[feedID]...)
	if limit > 0 && len(reports) > limit {
		reports = reports[:limit]
	}
	return reports, nil
}
