package registration

import (
	"context"
	"errors"
	"time"
)

// ErrFeedNotFound indicates a missing feed
var ErrFeedNotFound = errors.New("feed not found")

// FeedError is a feed-level error report. Only the message text is kept.
type FeedError struct {
	EntryID  string    `json:"entryId,omitempty"`
	Message  string    `json:"message"`
	Recorded time.Time `json:"recorded"`
}

// FeedStore persists feeds
type FeedStore interface {
	// SaveFeed creates or replaces a feed
	SaveFeed(ctx context.Context, feed *Feed) error

	// GetFeed returns a feed or ErrFeedNotFound
	GetFeed(ctx context.Context, id string) (*Feed, error)

	// ListFeeds returns the feeds of a form, or every feed when formID is empty
	ListFeeds(ctx context.Context, formID string) ([]*Feed, error)

	// DeleteFeed removes a feed and its error reports
	DeleteFeed(ctx context.Context, id string) error
}

// ErrorLog records feed error reports
type ErrorLog interface {
	// AddFeedError records a failure for a feed
	AddFeedError(ctx context.Context, feedID string, report FeedError) error

	// FeedErrors returns the most recent reports, newest first
	FeedErrors(ctx context.Context, feedID string, limit int) ([]FeedError, error)
}
