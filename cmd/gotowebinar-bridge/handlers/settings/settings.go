// Package settings serves the page that connects and authorizes the
// GoToWebinar OAuth client
package settings

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/wrale/gotowebinar-bridge/internal/credentials"
	"github.com/wrale/gotowebinar-bridge/internal/gotowebinar"
	"github.com/wrale/gotowebinar-bridge/internal/templates"
	"github.com/wrale/gotowebinar-bridge/internal/validation"
)

// Form actions, each protected by its own CSRF token
const (
	ActionConnect    = "connect"
	ActionDisconnect = "disconnect"
)

// User-facing messages
const (
	msgConnectError = "Please ensure you have entered a valid client ID and client secret."
	msgConnected    = "GoToWebinar is connected."
	msgDisconnected = "Successfully disconnected GoToWebinar client."
	msgFailedFormat = "Failed to connect; %s"
)

// Credentials is the credential manager as seen by the settings page
type Credentials interface {
	State() credentials.State
	IsReady() bool
	RedirectURI() string
	AuthorizeURL() string
	CreateAccessToken(ctx context.Context, code string) (*gotowebinar.TokenResponse, error)
	Connect(ctx context.Context, clientID, clientSecret string) error
	Disconnect(ctx context.Context) error
	Sync(ctx context.Context) error
}

// TokenManager issues and checks form tokens
type TokenManager interface {
	GenerateToken(ctx context.Context, action string) (string, error)
	ValidateToken(ctx context.Context, token, action string) error
}

// Renderer renders the HTML pages
type Renderer interface {
	RenderSettings(w http.ResponseWriter, data templates.SettingsData) error
	RenderError(w http.ResponseWriter, data templates.ErrorData) error
}

// Handler serves GET and POST /settings
type Handler struct {
	creds     Credentials
	csrf      TokenManager
	templates Renderer
	logger    *zap.Logger
}

// New creates a settings handler
func New(creds Credentials, csrf TokenManager, tmpls Renderer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{creds: creds, csrf: csrf, templates: tmpls, logger: logger}
}

// ServeHTTP dispatches on method
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		h.show(w, r)
	case http.MethodPost:
		h.submit(w, r)
	default:
		w.Header().Set("Allow", "GET, HEAD, POST")
		h.renderError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "Unsupported request method.")
	}
}

// show renders the page. It doubles as the OAuth redirect target: a code
// arriving while the client is not yet ready is exchanged for tokens.
func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	var data templates.SettingsData
	query := r.URL.Query()

	// Another replica may have connected, refreshed or disconnected
	if err := h.creds.Sync(r.Context()); err != nil {
		h.logger.Warn("reloading credentials failed", zap.Error(err))
	}

	switch {
	case query.Get("error") != "":
		// The user declined, or GoTo rejected the authorize request
		desc := query.Get("error_description")
		if desc == "" {
			desc = query.Get("error")
		}
		data.Error = fmt.Sprintf(msgFailedFormat, desc)
	case query.Get("code") != "" && !h.creds.IsReady():
		if _, err := h.creds.CreateAccessToken(r.Context(), query.Get("code")); err != nil {
			h.logger.Warn("authorization code exchange failed", zap.Error(err))
			data.Error = fmt.Sprintf(msgFailedFormat, err.Error())
		} else {
			data.Message = msgConnected
		}
	}

	h.render(w, r, data)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, http.StatusBadRequest, "Invalid Request", "The form could not be read.")
		return
	}

	action := r.PostForm.Get("action")
	if action != ActionConnect && action != ActionDisconnect {
		h.renderError(w, http.StatusBadRequest, "Invalid Request", "Unknown settings action.")
		return
	}

	if err := h.csrf.ValidateToken(r.Context(), r.PostForm.Get("csrf_token"), action); err != nil {
		h.logger.Warn("rejected settings form", zap.String("action", action), zap.Error(err))
		h.renderError(w, http.StatusForbidden, "Invalid Request", "Your session has expired. Please reload the settings page and try again.")
		return
	}

	var data templates.SettingsData
	switch action {
	case ActionConnect:
		err := h.creds.Connect(r.Context(), r.PostForm.Get("client_id"), r.PostForm.Get("client_secret"))
		var verr *validation.ValidationError
		switch {
		case errors.As(err, &verr):
			data.Error = msgConnectError
			data.ClientID = r.PostForm.Get("client_id")
		case err != nil:
			h.logger.Error("saving client credentials failed", zap.Error(err))
			h.renderError(w, http.StatusInternalServerError, "Settings Not Saved", "The settings could not be saved. Please try again.")
			return
		default:
			data.AuthorizeURL = h.creds.AuthorizeURL()
		}

	case ActionDisconnect:
		if err := h.creds.Disconnect(r.Context()); err != nil {
			h.logger.Error("disconnect failed", zap.Error(err))
			h.renderError(w, http.StatusInternalServerError, "Settings Not Saved", "The client could not be disconnected. Please try again.")
			return
		}
		data.Message = msgDisconnected
	}

	h.render(w, r, data)
}

// render fills in the connection state and fresh form tokens
func (h *Handler) render(w http.ResponseWriter, r *http.Request, data templates.SettingsData) {
	state := h.creds.State()
	data.Connected = h.creds.IsReady()
	data.RedirectURI = h.creds.RedirectURI()
	if data.ClientID == "" {
		data.ClientID = state.ClientID
	}
	if data.Connected {
		data.AuthorizeURL = ""
		data.OrganizerKey = state.OrganizerKey
		data.TokenExpires = state.TokenExpires
	}

	action := ActionConnect
	if data.Connected {
		action = ActionDisconnect
	}
	token, err := h.csrf.GenerateToken(r.Context(), action)
	if err != nil {
		h.logger.Error("generating form token failed", zap.Error(err))
		h.renderError(w, http.StatusServiceUnavailable, "Service Unavailable", "Please try again later.")
		return
	}
	if data.Connected {
		data.DisconnectToken = token
	} else {
		data.ConnectToken = token
	}

	if err := h.templates.RenderSettings(w, data); err != nil {
		h.logger.Error("rendering settings page failed", zap.Error(err))
		http.Error(w, "error rendering page", http.StatusInternalServerError)
	}
}

func (h *Handler) renderError(w http.ResponseWriter, status int, title, message string) {
	if err := h.templates.RenderError(w, templates.ErrorData{
		Status:  status,
		Title:   title,
		Message: message,
	}); err != nil {
		h.logger.Error("rendering error page failed", zap.Error(err))
		http.Error(w, fmt.Sprintf("%s: %s", title, message), status)
	}
}
