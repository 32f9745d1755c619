// Package feeds serves the JSON API for feed configuration
package feeds

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/wrale/gotowebinar-bridge/cmd/gotowebinar-bridge/handlers/common"
	"github.com/wrale/gotowebinar-bridge/internal/gotowebinar"
	"github.com/wrale/gotowebinar-bridge/internal/registration"
	"github.com/wrale/gotowebinar-bridge/internal/validation"
)

const (
	defaultErrorLimit = 20
	fieldFeedName     = "feed_name"
	fieldCondition    = "condition"
)

// WebinarLookup fetches a webinar to confirm it exists
type WebinarLookup interface {
	Webinar(ctx context.Context, organizerKey, webinarID string) (*gotowebinar.Webinar, error)
}

// Option configures a Handler
type Option func(*Handler)

// WithWebinarLookup checks literal webinar ids against the API on save
func WithWebinarLookup(l WebinarLookup) Option {
	return func(h *Handler) {
		h.webinars = l
	}
}

// WithClock replaces time.Now for feed creation times
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// Handler serves /feeds
type Handler struct {
	feeds    registration.FeedStore
	errorLog registration.ErrorLog
	creds    registration.CredentialSource
	webinars WebinarLookup
	now      func() time.Time
	logger   *zap.Logger
}

// New creates a feeds handler
func New(feeds registration.FeedStore, errorLog registration.ErrorLog, creds registration.CredentialSource, logger *zap.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		feeds:    feeds,
		errorLog: errorLog,
		creds:    creds,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the feed routes, to be mounted under /feeds
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/fields", h.fields)
	r.Route("/{feedID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Put("/", h.update)
		r.Delete("/", h.delete)
		r.Get("/errors", h.feedErrors)
	})
	return r
}

// feedRequest is the writable part of a feed
type feedRequest struct {
	FormID    string                  `json:"formId"`
	Name      string                  `json:"feedName"`
	WebinarID string                  `json:"webinarId"`
	FieldMap  map[string]string       `json:"fieldMap"`
	Condition *registration.Condition `json:"condition,omitempty"`
	Active    *bool                   `json:"active,omitempty"`
	// DelayUntilPaid holds the feed back until the entry's payment completes
	DelayUntilPaid *bool `json:"delayUntilPaid,omitempty"`
}

type listResponse struct {
	Feeds []*registration.Feed `json:"feeds"`
}

type errorsResponse struct {
	FeedID string                   `json:"feedId"`
	Errors []registration.FeedError `json:"errors"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	feeds, err := h.feeds.ListFeeds(r.Context(), r.URL.Query().Get("formId"))
	if err != nil {
		h.logger.Error("listing feeds failed", zap.Error(err))
		common.WriteDomainError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, listResponse{Feeds: feeds})
}

func (h *Handler) fields(w http.ResponseWriter, r *http.Request) {
	common.WriteJSON(w, http.StatusOK, map[string]any{"fields": registration.Fields})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	feed, err := h.feeds.GetFeed(r.Context(), chi.URLParam(r, "feedID"))
	if err != nil {
		common.WriteDomainError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, feed)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	// Feeds can only be set up once the API is connected
	if !h.creds.IsReady() {
		common.WriteDomainError(w, registration.ErrNotReady)
		return
	}

	var req feedRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteDomainError(w, err)
		return
	}

	feed := &registration.Feed{
		ID:        registration.NewFeedID(),
		Active:    true,
		CreatedAt: h.now().UTC(),
	}
	if err := h.apply(r.Context(), feed, req); err != nil {
		common.WriteDomainError(w, err)
		return
	}

	if err := h.feeds.SaveFeed(r.Context(), feed); err != nil {
		h.logger.Error("saving feed failed", zap.Error(err))
		common.WriteDomainError(w, err)
		return
	}

	h.logger.Info("feed created", zap.String("feed_id", feed.ID), zap.String("form_id", feed.FormID))
	w.Header().Set("Location", "/feeds/"+feed.ID)
	common.WriteJSON(w, http.StatusCreated, feed)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	feed, err := h.feeds.GetFeed(r.Context(), chi.URLParam(r, "feedID"))
	if err != nil {
		common.WriteDomainError(w, err)
		return
	}

	var req feedRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteDomainError(w, err)
		return
	}
	if err := h.apply(r.Context(), feed, req); err != nil {
		common.WriteDomainError(w, err)
		return
	}

	if err := h.feeds.SaveFeed(r.Context(), feed); err != nil {
		h.logger.Error("saving feed failed", zap.Error(err))
		common.WriteDomainError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, feed)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "feedID")
	if err := h.feeds.DeleteFeed(r.Context(), id); err != nil {
		common.WriteDomainError(w, err)
		return
	}
	h.logger.Info("feed deleted", zap.String("feed_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) feedErrors(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "feedID")
	if _, err := h.feeds.GetFeed(r.Context(), id); err != nil {
		common.WriteDomainError(w, err)
		return
	}

	limit := defaultErrorLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			common.WriteDomainError(w, validation.New("limit", "Limit must be a positive integer."))
			return
		}
		limit = n
	}

	reports, err := h.errorLog.FeedErrors(r.Context(), id, limit)
	if err != nil {
		h.logger.Error("reading feed errors failed", zap.Error(err))
		common.WriteDomainError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, errorsResponse{FeedID: id, Errors: reports})
}

// apply validates req and copies it onto feed
func (h *Handler) apply(ctx context.Context, feed *registration.Feed, req feedRequest) error {
	if err := validation.Required(validation.FieldFormID, req.FormID, "Form ID required."); err != nil {
		return err
	}
	if err := validation.Required(fieldFeedName, req.Name, "Feed name required."); err != nil {
		return err
	}

	webinarID := strings.TrimSpace(req.WebinarID)
	if !registration.HasMergeTags(webinarID) {
		if err := validation.ValidateWebinarID(webinarID); err != nil {
			return err
		}
		webinarID = validation.NormalizeWebinarID(webinarID)
		if err := h.checkWebinar(ctx, webinarID); err != nil {
			return err
		}
	}

	if err := validation.ValidateFieldMap(req.FieldMap, registration.FieldNames()); err != nil {
		return err
	}
	if err := validateCondition(req.Condition); err != nil {
		return err
	}

	feed.FormID = strings.TrimSpace(req.FormID)
	feed.Name = strings.TrimSpace(req.Name)
	feed.WebinarID = webinarID
	feed.FieldMap = req.FieldMap
	feed.Condition = req.Condition
	if req.Active != nil {
		feed.Active = *req.Active
	}
	if req.DelayUntilPaid != nil {
		feed.DelayUntilPaid = *req.DelayUntilPaid
	}
	return nil
}

func (h *Handler) checkWebinar(ctx context.Context, webinarID string) error {
	if h.webinars == nil || !h.creds.IsReady() {
		return nil
	}
	if err := h.creds.EnsureFresh(ctx); err != nil {
		return err
	}

	_, err := h.webinars.Webinar(ctx, h.creds.OrganizerKey(), webinarID)
	var apiErr *gotowebinar.APIError
	if errors.As(err, &apiErr) {
		// GoToWebinar answers unknown webinars with an error object
		return validation.New(validation.FieldWebinarID, "Webinar "+webinarID+" was not found: "+apiErr.Error())
	}
	return err
}

func validateCondition(c *registration.Condition) error {
	if c == nil {
		return nil
	}
	switch c.LogicType {
	case "", registration.LogicAll, registration.LogicAny:
	default:
		return validation.New(fieldCondition, "Unknown condition logic "+strconv.Quote(c.LogicType)+".")
	}
	for _, rule := range c.Rules {
		if err := validation.Required(fieldCondition, rule.FieldID, "Condition field required."); err != nil {
			return err
		}
		if !registration.ValidOperator(rule.Operator) {
			return validation.New(fieldCondition, "Unknown condition operator "+strconv.Quote(rule.Operator)+".")
		}
	}
	return nil
}
