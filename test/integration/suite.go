// Package integration drives a running bridge over HTTP
package integration

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

// Configuration for integration tests
const (
	// BridgeURLEnv names the base URL of the bridge under test
	BridgeURLEnv = "BRIDGE_URL"

	// Credentials the bridge under test was started with
	AdminUserEnv     = "BRIDGE_ADMIN_USER"
	AdminPasswordEnv = "BRIDGE_ADMIN_PASSWORD"
	APIKeyEnv        = "BRIDGE_API_KEY"

	// Timeouts and delays
	ServiceTimeout = 60 * time.Second
	RetryInterval  = 2 * time.Second

	maxBodySize = 1 << 20
)

// TestSuite provides shared functionality for integration tests
type TestSuite struct {
	T       *testing.T
	Client  *http.Client
	Ctx     context.Context
	BaseURL string

	AdminUser     string
	AdminPassword string
	APIKey        string
}

// NewSuite creates a new test suite with timeout. The test is skipped in
// short mode and when BRIDGE_URL is not set.
func NewSuite(t *testing.T) *TestSuite {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	base := strings.TrimSuffix(os.Getenv(BridgeURLEnv), "/")
	if base == "" {
		t.Skipf("%s not set", BridgeURLEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ServiceTimeout)
	t.Cleanup(cancel)

	return &TestSuite{
		T: t,
		Client: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		Ctx:           ctx,
		BaseURL:       base,
		AdminUser:     os.Getenv(AdminUserEnv),
		AdminPassword: os.Getenv(AdminPasswordEnv),
		APIKey:        os.Getenv(APIKeyEnv),
	}
}

// WaitForBridge waits until the bridge and its Redis report healthy
func (s *TestSuite) WaitForBridge() error {
	ticker := time.NewTicker(RetryInterval)
	defer ticker.Stop()

	for {
		err := s.checkHealth()
		if err == nil {
			return nil
		}

		select {
		case <-s.Ctx.Done():
			return fmt.Errorf("timeout waiting for bridge: %w", err)
		case <-ticker.C:
		}
	}
}

func (s *TestSuite) checkHealth() error {
	req, err := http.NewRequestWithContext(s.Ctx, http.MethodGet, s.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating health request: %w", err)
	}

	resp, err := s.DoRequest(req)
	if err != nil {
		return fmt.Errorf("checking health: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned status %d", resp.StatusCode)
	}
	return nil
}

// DoRequest sends req with the suite client. Requests without an
// Authorization header get the entry API key on /forms/ paths and the
// admin credentials everywhere else.
func (s *TestSuite) DoRequest(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") == "" {
		if strings.HasPrefix(req.URL.Path, "/forms/") {
			req.Header.Set("Authorization", "Bearer "+s.APIKey)
		} else if s.AdminUser != "" {
			req.SetBasicAuth(s.AdminUser, s.AdminPassword)
		}
	}
	return s.Client.Do(req)
}

// DoAnonymous sends req without adding any credentials
func (s *TestSuite) DoAnonymous(req *http.Request) (*http.Response, error) {
	return s.Client.Do(req)
}

// ReadBody reads at most 1MB of the response body
func (s *TestSuite) ReadBody(resp *http.Response) ([]byte, error) {
	return io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
}

// ExtractCSRFToken extracts the CSRF token from an HTML response
func (s *TestSuite) ExtractCSRFToken(html string) string {
	if i := strings.Index(html, `name="csrf_token" value="`); i > 0 {
		html = html[i+len(`name="csrf_token" value="`):]
		if i := strings.Index(html, `"`); i > 0 {
			return html[:i]
		}
	}
	return ""
}

// URL joins path onto the bridge base URL
func (s *TestSuite) URL(path string) string {
	return s.BaseURL + path
}
