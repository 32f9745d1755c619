// Package credentials manages the OAuth client credentials and tokens used
// to talk to GoToWebinar.
package credentials

import (
	"context"
	"time"
)

// State is the credential record. Empty strings and the zero time mean
// "not set".
type State struct {
	ClientID     string
	ClientSecret string
	AccessToken  string
	RefreshToken string
	OrganizerKey string
	TokenExpires time.Time
}

// IsReady reports whether the state can authenticate requests: either an
// access token is present or one can be obtained with the refresh token.
// It does not check that the credentials are valid.
func (s State) IsReady() bool {
	return s.AccessToken != "" ||
		(s.ClientID != "" && s.ClientSecret != "" && s.RefreshToken != "")
}

// Store persists the credential record
type Store interface {
	// Load returns the stored state, or the zero State when nothing is stored
	Load(ctx context.Context) (State, error)

	// Save replaces the stored state
	Save(ctx context.Context, state State) error

	// Clear removes the stored state
	Clear(ctx context.Context) error

	// CheckHealth verifies the storage backend is healthy
	CheckHealth(ctx context.Context) error
}
