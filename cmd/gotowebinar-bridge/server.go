package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/wrale/gotowebinar-bridge/cmd/gotowebinar-bridge/handlers/entries"
	"github.com/wrale/gotowebinar-bridge/cmd/gotowebinar-bridge/handlers/feeds"
	"github.com/wrale/gotowebinar-bridge/cmd/gotowebinar-bridge/handlers/settings"
)

const authRealm = "gotowebinar-bridge"

type server struct {
	cfg    Config
	router *chi.Mux
	logger *zap.Logger
}

// handlers groups the route handlers so tests can supply their own
type handlers struct {
	health   http.Handler
	metrics  http.Handler
	settings *settings.Handler
	feeds    *feeds.Handler
	entries  *entries.Handler
}

func newServer(cfg Config, h handlers, logger *zap.Logger) *server {
	srv := &server{
		cfg:    cfg,
		router: chi.NewRouter(),
		logger: logger,
	}

	srv.router.Use(middleware.RealIP)
	srv.router.Use(requestLogger(logger))
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(middleware.Timeout(cfg.HandlerTimeout))

	srv.routes(h)
	return srv
}

func (s *server) routes(h handlers) {
	s.router.Method(http.MethodGet, "/health", h.health)
	if h.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", h.metrics)
	}

	s.router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/settings", http.StatusFound)
	})

	// Admin surface
	s.router.Group(func(r chi.Router) {
		r.Use(middleware.BasicAuth(authRealm, map[string]string{
			s.cfg.AdminUsername: s.cfg.AdminPassword,
		}))
		r.Handle("/settings", h.settings)
		r.With(middleware.AllowContentType("application/json")).
			Mount("/feeds", h.feeds.Routes())
	})

	// Form hooks
	s.router.Group(func(r chi.Router) {
		r.Use(requireAPIKey(s.cfg.EntriesAPIKey))
		r.Use(middleware.AllowContentType("application/json"))
		r.Mount("/forms/{formID}/entries", h.entries.Routes())
	})
}
