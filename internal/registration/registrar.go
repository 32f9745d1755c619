package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wrale/gotowebinar-bridge/internal/gotowebinar"
	"github.com/wrale/gotowebinar-bridge/internal/validation"
)

// Registration outcomes reported to the observer
const (
	OutcomeRegistered   = "registered"
	OutcomeInvalid      = "invalid"
	OutcomeRefreshError = "refresh_error"
	OutcomeAPIError     = "api_error"
)

// ErrNotReady is returned when no usable credentials are configured
var ErrNotReady = errors.New("gotowebinar is not connected")

// ErrNotPaid is returned when a payment trigger arrives for an unpaid entry
var ErrNotPaid error = validation.New(validation.FieldPaymentStatus, "Entry payment has not completed.")

// CredentialSource supplies a fresh token and the organizer key
type CredentialSource interface {
	IsReady() bool
	EnsureFresh(ctx context.Context) error
	OrganizerKey() string
}

// RegistrantAPI creates registrants
type RegistrantAPI interface {
	CreateRegistrant(ctx context.Context, organizerKey, webinarID string, payload map[string]string) (*gotowebinar.Registrant, error)
}

// RegistrationObserver receives one observation per processed feed
type RegistrationObserver interface {
	ObserveRegistration(outcome string)
}

// Result is the outcome of processing one feed for an entry
type Result struct {
	FeedID     string                  `json:"feedId"`
	WebinarID  string                  `json:"webinarId,omitempty"`
	Registrant *gotowebinar.Registrant `json:"registrant,omitempty"`
	Error      string                  `json:"error,omitempty"`

	// Delayed is set for feeds held back until the entry is paid
	Delayed bool `json:"delayed,omitempty"`
}

// RegistrarOption configures a Registrar
type RegistrarOption func(*Registrar)

// WithPayloadFilter installs a filter applied to every payload before it is sent
func WithPayloadFilter(f PayloadFilter) RegistrarOption {
	return func(r *Registrar) {
		r.filter = f
	}
}

// WithRegistrarLogger sets the registrar logger
func WithRegistrarLogger(l *zap.Logger) RegistrarOption {
	return func(r *Registrar) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRegistrationObserver sets the registration observer
func WithRegistrationObserver(o RegistrationObserver) RegistrarOption {
	return func(r *Registrar) {
		r.observer = o
	}
}

// WithRegistrarClock replaces time.Now for error timestamps
func WithRegistrarClock(now func() time.Time) RegistrarOption {
	return func(r *Registrar) {
		r.now = now
	}
}

// Registrar processes feeds for submitted entries
type Registrar struct {
	creds    CredentialSource
	api      RegistrantAPI
	feeds    FeedStore
	errorLog ErrorLog
	filter   PayloadFilter
	observer RegistrationObserver
	now      func() time.Time
	logger   *zap.Logger
}

// NewRegistrar creates a registrar
func NewRegistrar(creds CredentialSource, api RegistrantAPI, feeds FeedStore, errorLog ErrorLog, opts ...RegistrarOption) *Registrar {
	r := &Registrar{
		creds:    creds,
		api:      api,
		feeds:    feeds,
		errorLog: errorLog,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Process registers the entry for the feed's webinar. A stale access token
// is refreshed first; if that fails nothing is posted. Every failure is
// recorded against the feed and returned.
func (r *Registrar) Process(ctx context.Context, feed *Feed, entry *Entry) (*gotowebinar.Registrant, error) {
	logger := r.logger.With(zap.String("feed_id", feed.ID), zap.String("entry_id", entry.ID))

	webinarID := validation.NormalizeWebinarID(ResolveMergeTags(feed.WebinarID, entry))
	if err := validation.Required(validation.FieldWebinarID, webinarID, "Webinar ID required."); err != nil {
		r.fail(ctx, logger, feed, entry, OutcomeInvalid, err)
		return nil, err
	}

	payload := BuildPayload(feed.FieldMap, entry.Values)
	if r.filter != nil {
		payload = r.filter(payload, feed, entry)
	}

	if err := r.creds.EnsureFresh(ctx); err != nil {
		r.fail(ctx, logger, feed, entry, OutcomeRefreshError, err)
		return nil, err
	}

	registrant, err := r.api.CreateRegistrant(ctx, r.creds.OrganizerKey(), webinarID, payload)
	if err != nil {
		r.fail(ctx, logger, feed, entry, OutcomeAPIError, err)
		return nil, err
	}

	r.observe(OutcomeRegistered)
	logger.Info("registered webinar attendee",
		zap.String("webinar_id", webinarID),
		zap.String("registrant_key", registrant.RegistrantKey.String()))
	return registrant, nil
}

// ProcessEntry runs every active feed of the entry's form whose condition
// matches. Feeds that wait for payment run now only if the entry is already
// paid; otherwise they are reported as delayed. Feed failures are reported
// per result; the returned error is reserved for failures to look up feeds.
func (r *Registrar) ProcessEntry(ctx context.Context, entry *Entry) ([]Result, error) {
	paid := entry.IsPaid()
	return r.run(ctx, entry, func(feed *Feed) (run, delayed bool) {
		if feed.DelayUntilPaid && !paid {
			return false, true
		}
		return true, false
	})
}

// ProcessPayment runs the feeds that ProcessEntry delayed, once the entry's
// payment has completed. Feeds without the delay already ran and are
// skipped.
func (r *Registrar) ProcessPayment(ctx context.Context, entry *Entry) ([]Result, error) {
	if !entry.IsPaid() {
		return nil, ErrNotPaid
	}
	return r.run(ctx, entry, func(feed *Feed) (run, delayed bool) {
		return feed.DelayUntilPaid, false
	})
}

func (r *Registrar) run(ctx context.Context, entry *Entry, selectFeed func(*Feed) (run, delayed bool)) ([]Result, error) {
	if !r.creds.IsReady() {
		return nil, ErrNotReady
	}

	feeds, err := r.feeds.ListFeeds(ctx, entry.FormID)
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}

	results := make([]Result, 0, len(feeds))
	for _, feed := range feeds {
		if !feed.Active || !feed.Condition.Matches(entry) {
			continue
		}

		run, delayed := selectFeed(feed)
		if delayed {
			r.logger.Debug("feed delayed until payment",
				zap.String("feed_id", feed.ID), zap.String("entry_id", entry.ID))
			results = append(results, Result{FeedID: feed.ID, Delayed: true})
			continue
		}
		if !run {
			continue
		}

		res := Result{FeedID: feed.ID}
		registrant, err := r.Process(ctx, feed, entry)
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Registrant = registrant
			res.WebinarID = validation.NormalizeWebinarID(ResolveMergeTags(feed.WebinarID, entry))
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Registrar) fail(ctx context.Context, logger *zap.Logger, feed *Feed, entry *Entry, outcome string, err error) {
	r.observe(outcome)
	logger.Error("feed processing failed", zap.String("outcome", outcome), zap.Error(err))

	if r.errorLog == nil {
		return
	}
	report := FeedError{EntryID: entry.ID, Message: err.Error(), Recorded: r.now().UTC()}
	if logErr := r.errorLog.AddFeedError(ctx, feed.ID, report); logErr != nil {
		logger.Warn("failed to record feed error", zap.Error(logErr))
	}
}

func (r *Registrar) observe(outcome string) {
	if r.observer != nil {
		r.observer.ObserveRegistration(outcome)
	}
}
