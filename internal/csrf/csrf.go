// Package csrf issues and checks single-use form tokens for the settings
// and feed pages.
package csrf

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrInvalidToken indicates a missing, forged or already used token
	ErrInvalidToken = errors.New("invalid csrf token")

	// ErrTokenExpired indicates the token is past its expiry
	ErrTokenExpired = errors.New("csrf token expired")
)

// Store keeps issued tokens until they are consumed or expire
type Store interface {
	// SaveToken records a token for an action
	SaveToken(ctx context.Context, token, action string, expiresIn time.Duration) error

	// ConsumeToken removes the token and returns the action it was issued
	// for. Missing tokens yield ErrInvalidToken.
	ConsumeToken(ctx context.Context, token string) (string, error)

	// CheckHealth verifies the store is operational
	CheckHealth(ctx context.Context) error
}

// Manager handles token generation and validation
type Manager struct {
	store     Store
	secret    []byte
	expiresIn time.Duration
	logger    *zap.Logger
}

// NewManager creates a new token manager
func NewManager(store Store, secret []byte, expiresIn time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:     store,
		secret:    secret,
		expiresIn: expiresIn,
		logger:    logger,
	}
}

// GenerateToken creates and stores a token bound to action
func (m *Manager) GenerateToken(ctx context.Context, action string) (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	value := base64.RawURLEncoding.EncodeToString(nonce)

	token := value + "." + base64.RawURLEncoding.EncodeToString(m.sign(action, value))
	if err := m.store.SaveToken(ctx, token, action, m.expiresIn); err != nil {
		return "", fmt.Errorf("saving token: %w", err)
	}
	return token, nil
}

// ValidateToken checks and consumes a token submitted for action.
// A token can be validated once.
func (m *Manager) ValidateToken(ctx context.Context, token, action string) error {
	value, sig, ok := strings.Cut(token, ".")
	if !ok || value == "" {
		return ErrInvalidToken
	}

	actual, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil || !hmac.Equal(m.sign(action, value), actual) {
		m.logger.Warn("rejected csrf token", zap.String("action", action))
		return ErrInvalidToken
	}

	issuedFor, err := m.store.ConsumeToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrTokenExpired) {
			return err
		}
		return fmt.Errorf("validating token: %w", err)
	}
	if issuedFor != action {
		return ErrInvalidToken
	}
	return nil
}

// CheckHealth verifies the token store is operational
func (m *Manager) CheckHealth(ctx context.Context) error {
	if err := m.store.CheckHealth(ctx); err != nil {
		return fmt.Errorf("csrf store health check failed: %w", err)
	}
	return nil
}

func (m *Manager) sign(action, value string) []byte {
	h := hmac.New(sha256.New, m.secret)
	h.Write([]byte(action))
	h.Write([]byte{0})
	h.Write([]byte(value))
	return h.Sum(nil)
}
