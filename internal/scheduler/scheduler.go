// Package scheduler runs the periodic access token refresh
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/wrale/gotowebinar-bridge/internal/gotowebinar"
)

// DefaultSchedule refreshes once a day
const DefaultSchedule = "@daily"

// Run outcomes reported to the observer
const (
	OutcomeRefreshed = "refreshed"
	OutcomeSkipped   = "skipped"
	OutcomeFailure   = "failure"
)

// Refresher refreshes the access token
type Refresher interface {
	IsReady() bool
	RefreshAccessToken(ctx context.Context) (*gotowebinar.TokenResponse, error)
}

// RunObserver receives one observation per scheduled run
type RunObserver interface {
	ObserveRefreshRun(outcome string)
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithLogger sets the scheduler logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver sets the run observer
func WithObserver(o RunObserver) Option {
	return func(s *Scheduler) {
		s.observer = o
	}
}

// WithTimeout bounds each refresh run
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// Scheduler refreshes the access token on a cron schedule so the refresh
// token never goes unused for long
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	observer  RunObserver
	timeout   time.Duration
	logger    *zap.Logger
}

// New creates a scheduler for schedule, a standard cron expression or a
// descriptor such as "@daily" or "@every 12h"
func New(refresher Refresher, schedule string, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		refresher: refresher,
		timeout:   time.Minute,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	logger := cronLogger{s.logger.Sugar()}
	s.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the schedule in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.logger.Info("token refresh scheduled", zap.Time("next", e.Next))
	}
}

// Stop halts the schedule and waits for a running refresh to finish or ctx
// to end
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce refreshes the token when credentials are configured. It returns
// the outcome recorded for the run.
func (s *Scheduler) RunOnce(ctx context.Context) string {
	outcome := s.run(ctx)
	if s.observer != nil {
		s.observer.ObserveRefreshRun(outcome)
	}
	return outcome
}

func (s *Scheduler) run(ctx context.Context) string {
	if !s.refresher.IsReady() {
		s.logger.Debug("skipping scheduled refresh: not connected")
		return OutcomeSkipped
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	token, err := s.refresher.RefreshAccessToken(ctx)
	if err != nil {
		s.logger.Error("scheduled token refresh failed", zap.Error(err))
		return OutcomeFailure
	}
	if token == nil {
		s.logger.Error("scheduled token refresh returned no token")
		return OutcomeFailure
	}

	s.logger.Info("scheduled token refresh complete", zap.Time("expires", token.Expires))
	return OutcomeRefreshed
}

// cronLogger routes cron's own logging to zap
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
