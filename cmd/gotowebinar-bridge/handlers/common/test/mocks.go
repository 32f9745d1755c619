// Package test provides shared handler test doubles
package test

import (
	"context"
	"errors"
	"sync"

	"github.com/wrale/gotowebinar-bridge/internal/credentials"
	"github.com/wrale/gotowebinar-bridge/internal/gotowebinar"
	"github.com/wrale/gotowebinar-bridge/internal/registration"
)

// MockCredentials is an in-memory credential manager. Func fields override
// the default behavior.
type MockCredentials struct {
	mu sync.Mutex

	StateValue   credentials.State
	Redirect     string
	AuthorizeURI string

	CreateAccessTokenFunc func(ctx context.Context, code string) (*gotowebinar.TokenResponse, error)
	ConnectFunc           func(ctx context.Context, clientID, clientSecret string) error
	DisconnectFunc        func(ctx context.Context) error
	EnsureFreshFunc       func(ctx context.Context) error
	SyncFunc              func(ctx context.Context) error

	Codes []string
	Syncs int
}

// State returns the current state
func (m *MockCredentials) State() credentials.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.StateValue
}

// IsReady reports readiness of the current state
func (m *MockCredentials) IsReady() bool {
	return m.State().IsReady()
}

// RedirectURI returns Redirect
func (m *MockCredentials) RedirectURI() string {
	return m.Redirect
}

// AuthorizeURL returns AuthorizeURI
func (m *MockCredentials) AuthorizeURL() string {
	return m.AuthorizeURI
}

// OrganizerKey returns the stored organizer key
func (m *MockCredentials) OrganizerKey() string {
	return m.State().OrganizerKey
}

// EnsureFresh calls EnsureFreshFunc when set
func (m *MockCredentials) EnsureFresh(ctx context.Context) error {
	if m.EnsureFreshFunc != nil {
		return m.EnsureFreshFunc(ctx)
	}
	return nil
}

// CreateAccessToken records the code; by default it marks the state ready
func (m *MockCredentials) CreateAccessToken(ctx context.Context, code string) (*gotowebinar.TokenResponse, error) {
	m.mu.Lock()
	m.Codes = append(m.Codes, code)
	m.mu.Unlock()

	if m.CreateAccessTokenFunc != nil {
		return m.CreateAccessTokenFunc(ctx, code)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.StateValue.AccessToken = "access-" + code
	m.StateValue.RefreshToken = "refresh-" + code
	m.StateValue.OrganizerKey = "100"
	return &gotowebinar.TokenResponse{AccessToken: m.StateValue.AccessToken}, nil
}

// Connect stores client credentials unless ConnectFunc fails
func (m *MockCredentials) Connect(ctx context.Context, clientID, clientSecret string) error {
	if m.ConnectFunc != nil {
		if err := m.ConnectFunc(ctx, clientID, clientSecret); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StateValue = credentials.State{ClientID: clientID, ClientSecret: clientSecret}
	return nil
}

// Disconnect clears the state unless DisconnectFunc fails
func (m *MockCredentials) Disconnect(ctx context.Context) error {
	if m.DisconnectFunc != nil {
		if err := m.DisconnectFunc(ctx); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StateValue = credentials.State{}
	return nil
}

// Sync counts the call and runs SyncFunc when set
func (m *MockCredentials) Sync(ctx context.Context) error {
	m.mu.Lock()
	m.Syncs++
	m.mu.Unlock()

	if m.SyncFunc != nil {
		return m.SyncFunc(ctx)
	}
	return nil
}

var _ registration.CredentialSource = (*MockCredentials)(nil)

// ErrTokenRejected is returned for tokens not issued for the action
var ErrTokenRejected = errors.New("token rejected")

// MockTokenManager issues predictable form tokens of the form "token-{action}"
type MockTokenManager struct {
	GenerateErr error
	ValidateErr error
}

// GenerateToken returns "token-" + action
func (m *MockTokenManager) GenerateToken(ctx context.Context, action string) (string, error) {
	if m.GenerateErr != nil {
		return "", m.GenerateErr
	}
	return "token-" + action, nil
}

// ValidateToken accepts only the token issued for action
func (m *MockTokenManager) ValidateToken(ctx context.Context, token, action string) error {
	if m.ValidateErr != nil {
		return m.ValidateErr
	}
	if token != "token-"+action {
		return ErrTokenRejected
	}
	return nil
}
