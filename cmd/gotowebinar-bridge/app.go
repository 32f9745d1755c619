package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wrale/gotowebinar-bridge/cmd/gotowebinar-bridge/handlers/entries"
	"github.com/wrale/gotowebinar-bridge/cmd/gotowebinar-bridge/handlers/feeds"
	"github.com/wrale/gotowebinar-bridge/cmd/gotowebinar-bridge/handlers/health"
	"github.com/wrale/gotowebinar-bridge/cmd/gotowebinar-bridge/handlers/settings"
	"github.com/wrale/gotowebinar-bridge/internal/credentials"
	"github.com/wrale/gotowebinar-bridge/internal/csrf"
	"github.com/wrale/gotowebinar-bridge/internal/gotowebinar"
	"github.com/wrale/gotowebinar-bridge/internal/logging"
	"github.com/wrale/gotowebinar-bridge/internal/metrics"
	"github.com/wrale/gotowebinar-bridge/internal/registration"
	"github.com/wrale/gotowebinar-bridge/internal/templates"
)

// app holds the long-lived dependencies shared by every command
type app struct {
	cfg       Config
	logger    *zap.Logger
	redis     *redis.Client
	metrics   *metrics.Metrics
	api       *gotowebinar.Client
	manager   *credentials.Manager
	feeds     *registration.RedisStore
	registrar *registration.Registrar
	csrf      *csrf.Manager
}

// newApp connects to Redis and loads the stored credentials
func newApp(ctx context.Context, cfg Config) (*app, error) {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing Redis URL: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	m := metrics.New()

	base := gotowebinar.NewClient(
		gotowebinar.WithBaseURL(cfg.GoToAPIURL),
		gotowebinar.WithAuthURL(cfg.GoToAuthURL),
		gotowebinar.WithTimeout(cfg.RequestTimeout),
		gotowebinar.WithLogger(logger.Named("gotowebinar")),
		gotowebinar.WithObserver(m),
	)

	manager := credentials.NewManager(base,
		credentials.NewRedisStore(redisClient, cfg.SettingsKey),
		cfg.RedirectURI(),
		credentials.WithLogger(logger.Named("credentials")),
		credentials.WithObserver(m),
	)
	if err := manager.Load(ctx); err != nil {
		_ = redisClient.Close()
		return nil, err
	}

	feedStore := registration.NewRedisStore(redisClient, cfg.FeedPrefix)
	api := base.WithTokenSource(manager)

	registrar := registration.NewRegistrar(manager, api, feedStore, feedStore,
		registration.WithRegistrarLogger(logger.Named("registration")),
		registration.WithRegistrationObserver(m),
	)

	csrfManager := csrf.NewManager(csrf.NewRedisStore(redisClient),
		[]byte(cfg.CSRFSecret), cfg.CSRFTokenExpiry, logger.Named("csrf"))

	return &app{
		cfg:       cfg,
		logger:    logger,
		redis:     redisClient,
		metrics:   m,
		api:       api,
		manager:   manager,
		feeds:     feedStore,
		registrar: registrar,
		csrf:      csrfManager,
	}, nil
}

// handlers builds the HTTP handlers over the app dependencies
func (a *app) handlers() (handlers, error) {
	tmpls, err := templates.LoadTemplates()
	if err != nil {
		return handlers{}, err
	}

	settingsStore := credentials.NewRedisStore(a.redis, a.cfg.SettingsKey)

	return handlers{
		health: health.New(map[string]health.Checker{
			"settings_store": settingsStore,
			"feed_store":     a.feeds,
			"csrf":           a.csrf,
		}).WithVersion(Version),
		metrics:  a.metrics.Handler(),
		settings: settings.New(a.manager, a.csrf, tmpls, a.logger.Named("settings")),
		feeds: feeds.New(a.feeds, a.feeds, a.manager, a.logger.Named("feeds"),
			feeds.WithWebinarLookup(a.api)),
		entries: entries.New(a.registrar, a.logger.Named("entries")),
	}, nil
}

// httpServer wraps the router with the configured timeouts
func (a *app) httpServer(h http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout,
		ReadTimeout:       a.cfg.ReadTimeout,
		WriteTimeout:      a.cfg.WriteTimeout,
		IdleTimeout:       a.cfg.IdleTimeout,
	}
}

func (a *app) close() {
	if err := a.redis.Close(); err != nil {
		a.logger.Error("error closing Redis connection", zap.Error(err))
	}
	_ = a.logger.Sync()
}
