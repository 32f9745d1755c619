package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/wrale/gotowebinar-bridge/internal/gotowebinar"
	"github.com/wrale/gotowebinar-bridge/internal/validation"
)

// Token exchange outcomes reported to the observer
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeInvalid = "invalid"

	// OutcomeDiscarded marks an exchange whose result was dropped because
	// the client was connected or disconnected while it ran
	OutcomeDiscarded = "discarded"
)

// ErrCredentialsChanged is returned when the credentials were replaced or
// cleared while a token exchange was in flight
var ErrCredentialsChanged = errors.New("credentials changed during token exchange")

// refreshKey groups concurrent refreshes of one Manager
const refreshKey = "refresh"

// ExchangeObserver receives one observation per token exchange attempt
type ExchangeObserver interface {
	ObserveTokenExchange(grant, outcome string)
}

// Option configures a Manager
type Option func(*Manager)

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger sets the manager logger
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithObserver sets the token exchange observer
func WithObserver(o ExchangeObserver) Option {
	return func(m *Manager) {
		m.observer = o
	}
}

// Manager owns the credential state: it runs the authorization-code and
// refresh-token exchanges and persists every successful result.
//
// Manager implements oauth2.TokenSource over the current state so the API
// client can read the bearer token; reading never triggers a refresh.
//
// Every write to the store happens under writeMu together with the matching
// state change. generation moves whenever the client is replaced or cleared;
// an exchange started under an older generation is discarded.
type Manager struct {
	writeMu sync.Mutex

	mu          sync.RWMutex
	state       State
	generation  uint64
	unsaved     bool
	client      *gotowebinar.Client
	store       Store
	redirectURI string
	now         func() time.Time
	group       singleflight.Group
	observer    ExchangeObserver
	logger      *zap.Logger
}

var _ oauth2.TokenSource = (*Manager)(nil)

// NewManager creates a manager with an empty state. Call Load to read the
// stored settings.
func NewManager(client *gotowebinar.Client, store Store, redirectURI string, opts ...Option) *Manager {
	m := &Manager{
		client:      client,
		store:       store,
		redirectURI: redirectURI,
		now:         time.Now,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load replaces the in-memory state with the stored settings
func (m *Manager) Load(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	state, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	m.mu.Lock()
	m.adopt(state)
	m.mu.Unlock()
	return nil
}

// Sync picks up settings written by other processes, such as the refresh
// command or another replica. When the last save failed the in-memory
// state is newer than the store, so it is saved again instead.
func (m *Manager) Sync(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.RLock()
	unsaved, current := m.unsaved, m.state
	m.mu.RUnlock()

	if unsaved {
		if err := m.store.Save(ctx, current); err != nil {
			return fmt.Errorf("persisting credentials: %w", err)
		}
		m.mu.Lock()
		m.unsaved = false
		m.mu.Unlock()
		return nil
	}

	stored, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	m.mu.Lock()
	m.adopt(stored)
	m.mu.Unlock()
	return nil
}

// adopt replaces the state with stored settings. Caller holds mu.
func (m *Manager) adopt(stored State) {
	if stored.ClientID != m.state.ClientID || stored.ClientSecret != m.state.ClientSecret {
		m.generation++
	}
	m.state = stored
	m.unsaved = false
}

// sync is Sync for paths that can continue on the in-memory state
func (m *Manager) sync(ctx context.Context) {
	if err := m.Sync(ctx); err != nil {
		m.logger.Warn("using in-memory credentials", zap.Error(err))
	}
}

// Connect stores new client credentials and drops any tokens issued to the
// previous client. The client must then be authorized.
func (m *Manager) Connect(ctx context.Context, clientID, clientSecret string) error {
	if err := validation.Required(validation.FieldClientID, clientID, "Client ID required."); err != nil {
		return err
	}
	if err := validation.Required(validation.FieldClientSecret, clientSecret, "Client secret required."); err != nil {
		return err
	}

	next := State{ClientID: strings.TrimSpace(clientID), ClientSecret: strings.TrimSpace(clientSecret)}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.store.Save(ctx, next); err != nil {
		return fmt.Errorf("saving client credentials: %w", err)
	}

	m.mu.Lock()
	m.state = next
	m.generation++
	m.unsaved = false
	m.mu.Unlock()

	m.logger.Info("stored client credentials", zap.String("client_id", next.ClientID))
	return nil
}

// Disconnect removes the stored settings and resets the state
func (m *Manager) Disconnect(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("clearing credentials: %w", err)
	}

	m.mu.Lock()
	clientID := m.state.ClientID
	m.state = State{}
	m.generation++
	m.unsaved = false
	m.mu.Unlock()

	m.logger.Info("disconnected client", zap.String("client_id", clientID))
	return nil
}

// State returns a copy of the current credential state
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsReady reports whether the current state can authenticate requests
func (m *Manager) IsReady() bool {
	return m.State().IsReady()
}

// RedirectURI returns the OAuth redirect URI registered for the client
func (m *Manager) RedirectURI() string {
	return m.redirectURI
}

// OrganizerKey returns the organizer key from the last token exchange
func (m *Manager) OrganizerKey() string {
	return m.State().OrganizerKey
}

// AuthorizeURL builds the authorization redirect for the configured client
func (m *Manager) AuthorizeURL() string {
	return m.client.AuthorizeURL(m.State().ClientID, m.redirectURI)
}

// Token implements oauth2.TokenSource. The organizer key is exposed as the
// "organizer_key" extra.
func (m *Manager) Token() (*oauth2.Token, error) {
	s := m.State()
	tok := &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: s.RefreshToken,
		Expiry:       s.TokenExpires,
	}
	return tok.WithExtra(map[string]interface{}{"organizer_key": s.OrganizerKey}), nil
}

// Stale reports whether the access token has expired (token_expires <= now).
// A state without an expiry is stale.
func (m *Manager) Stale() bool {
	return !m.now().Before(m.State().TokenExpires)
}

// CreateAccessToken exchanges an authorization code for tokens
func (m *Manager) CreateAccessToken(ctx context.Context, code string) (*gotowebinar.TokenResponse, error) {
	if code == "" {
		m.observe(gotowebinar.GrantAuthorizationCode, OutcomeInvalid)
		return nil, validation.New(validation.FieldAuthorizationCode, "Authorisation code cannot be empty.")
	}

	token, err := m.token(ctx, url.Values{
		"redirect_uri": {m.redirectURI},
		"grant_type":   {gotowebinar.GrantAuthorizationCode},
		"code":         {code},
	})
	if err != nil {
		m.logger.Error("failed to create new access token", zap.Error(err))
		return nil, err
	}

	m.logger.Info("created new access token",
		zap.String("organizer_key", token.OrganizerKey),
		zap.Time("expires", token.Expires))
	return token, nil
}

// RefreshAccessToken exchanges the stored refresh token for new tokens.
// Concurrent calls share a single exchange. It always returns either new
// tokens or an error.
func (m *Manager) RefreshAccessToken(ctx context.Context) (*gotowebinar.TokenResponse, error) {
	for {
		token, err := m.refresh(ctx, false)
		if err != nil || token != nil {
			return token, err
		}
		// Joined a stale-only flight that found the token fresh.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// EnsureFresh refreshes the access token when it is stale and returns the
// refresh error unchanged. Callers must not use the API when it fails.
func (m *Manager) EnsureFresh(ctx context.Context) error {
	m.sync(ctx)
	if !m.Stale() {
		return nil
	}
	_, err := m.refresh(ctx, true)
	return err
}

// refresh runs the exchange in a flight shared by all concurrent callers.
// The flight is detached from the first caller's cancellation and bounded
// by the client timeout; a cancelled caller stops waiting without
// cancelling the others.
func (m *Manager) refresh(ctx context.Context, onlyIfStale bool) (*gotowebinar.TokenResponse, error) {
	ch := m.group.DoChan(refreshKey, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.client.Timeout())
		defer cancel()

		// Another caller or process may have refreshed since the check.
		m.sync(fctx)
		if onlyIfStale && !m.Stale() {
			return (*gotowebinar.TokenResponse)(nil), nil
		}

		refreshToken := m.State().RefreshToken
		if refreshToken == "" {
			m.observe(gotowebinar.GrantRefreshToken, OutcomeInvalid)
			return nil, validation.New(validation.FieldRefreshToken, "Refresh token required.")
		}

		token, err := m.token(fctx, url.Values{
			"grant_type":    {gotowebinar.GrantRefreshToken},
			"refresh_token": {refreshToken},
		})
		if err != nil {
			m.logger.Error("failed to refresh access token", zap.Error(err))
			return token, err
		}

		m.logger.Info("refreshed access token", zap.Time("expires", token.Expires))
		return token, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			m.logger.Debug("joined in-flight token refresh")
		}
		token, _ := res.Val.(*gotowebinar.TokenResponse)
		return token, res.Err
	}
}

// token performs a token endpoint exchange and, on success, updates and
// persists the state. On failure the state is left untouched. A result for
// credentials that were replaced or cleared meanwhile is discarded.
func (m *Manager) token(ctx context.Context, form url.Values) (*gotowebinar.TokenResponse, error) {
	grant := form.Get("grant_type")

	m.mu.RLock()
	current, generation := m.state, m.generation
	m.mu.RUnlock()

	if err := validation.Required(validation.FieldClientID, current.ClientID, "Client ID required."); err != nil {
		m.observe(grant, OutcomeInvalid)
		return nil, err
	}
	if err := validation.Required(validation.FieldClientSecret, current.ClientSecret, "Client secret required."); err != nil {
		m.observe(grant, OutcomeInvalid)
		return nil, err
	}

	sent := m.now().Truncate(time.Second)

	token, err := m.client.Token(ctx, current.ClientID, current.ClientSecret, form)
	if err != nil {
		m.observe(grant, OutcomeFailure)
		return nil, err
	}
	token.Expires = sent.Add(time.Duration(token.ExpiresIn) * time.Second)

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	if m.generation != generation {
		m.mu.Unlock()
		m.observe(grant, OutcomeDiscarded)
		m.logger.Warn("discarding token exchange for replaced credentials",
			zap.String("client_id", current.ClientID))
		return nil, ErrCredentialsChanged
	}
	m.state.TokenExpires = token.Expires
	m.state.AccessToken = token.AccessToken
	m.state.RefreshToken = token.RefreshToken
	m.state.OrganizerKey = token.OrganizerKey
	next := m.state
	m.mu.Unlock()

	m.observe(grant, OutcomeSuccess)

	// The new tokens stay in memory even if persisting fails; the old
	// refresh token may already be revoked. Sync retries the save.
	if err := m.store.Save(ctx, next); err != nil {
		m.mu.Lock()
		m.unsaved = true
		m.mu.Unlock()
		m.logger.Error("failed to persist credentials", zap.Error(err))
		return token, fmt.Errorf("persisting credentials: %w", err)
	}

	m.mu.Lock()
	m.unsaved = false
	m.mu.Unlock()
	return token, nil
}

func (m *Manager) observe(grant, outcome string) {
	if m.observer != nil {
		m.observer.ObserveTokenExchange(grant, outcome)
	}
}
