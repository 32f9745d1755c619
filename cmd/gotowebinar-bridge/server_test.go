package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wrale/gotowebinar-bridge/cmd/gotowebinar-bridge/handlers/common"
	"github.com/wrale/gotowebinar-bridge/cmd/gotowebinar-bridge/handlers/common/test"
	"github.com/wrale/gotowebinar-bridge/cmd/gotowebinar-bridge/handlers/entries"
	"github.com/wrale/gotowebinar-bridge/cmd/gotowebinar-bridge/handlers/feeds"
	"github.com/wrale/gotowebinar-bridge/cmd/gotowebinar-bridge/handlers/health"
	"github.com/wrale/gotowebinar-bridge/cmd/gotowebinar-bridge/handlers/settings"
	"github.com/wrale/gotowebinar-bridge/internal/credentials"
	"github.com/wrale/gotowebinar-bridge/internal/registration"
	"github.com/wrale/gotowebinar-bridge/internal/templates"
)

type checkFunc func(ctx context.Context) error

func (f checkFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

type stubProcessor struct {
	formIDs []string
}

func (p *stubProcessor) ProcessEntry(ctx context.Context, entry *registration.Entry) ([]registration.Result, error) {
	p.formIDs = append(p.formIDs, entry.FormID)
	return []registration.Result{}, nil
}

func (p *stubProcessor) ProcessPayment(ctx context.Context, entry *registration.Entry) ([]registration.Result, error) {
	p.formIDs = append(p.formIDs, entry.FormID)
	return []registration.Result{}, nil
}

func testConfig() Config {
	return Config{
		Port:           8080,
		BaseURL:        "https://bridge.example.com",
		AdminUsername:  testAdminUser,
		AdminPassword:  testAdminPassword,
		EntriesAPIKey:  testAPIKey,
		HandlerTimeout: 5 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

type credential int

const (
	noAuth credential = iota
	adminAuth
	apiKeyAuth
)

func newRequest(method, path, contentType, body string, auth credential) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	switch auth {
	case adminAuth:
		req.SetBasicAuth(testAdminUser, testAdminPassword)
	case apiKeyAuth:
		req.Header.Set("Authorization", "Bearer "+testAPIKey)
	}
	return req
}

func newTestServer(t *testing.T, storeHealth error) (*server, *stubProcessor) {
	t.Helper()

	tmpls, err := templates.LoadTemplates()
	require.NoError(t, err)

	creds := &test.MockCredentials{
		StateValue: credentials.State{
			ClientID:     "client",
			ClientSecret: "secret",
			AccessToken:  "access",
			RefreshToken: "refresh",
			OrganizerKey: "100",
		},
		Redirect: "https://bridge.example.com/settings",
	}
	store := test.NewMemoryFeedStore()
	processor := &stubProcessor{}

	h := handlers{
		health: health.New(map[string]health.Checker{
			"feed_store": checkFunc(func(ctx context.Context) error { return storeHealth }),
		}).WithVersion("test"),
		metrics:  promhttp.Handler(),
		settings: settings.New(creds, &test.MockTokenManager{}, tmpls, zap.NewNop()),
		feeds:    feeds.New(store, store, creds, zap.NewNop()),
		entries:  entries.New(processor, zap.NewNop()),
	}

	return newServer(testConfig(), h, zap.NewNop()), processor
}

func TestServer_Routes(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		auth   credential
		status int
	}{
		{name: "health", method: http.MethodGet, path: "/health", status: http.StatusOK},
		{name: "metrics", method: http.MethodGet, path: "/metrics", status: http.StatusOK},
		{name: "settings", method: http.MethodGet, path: "/settings", auth: adminAuth, status: http.StatusOK},
		{name: "settings wrong method", method: http.MethodDelete, path: "/settings", auth: adminAuth, status: http.StatusMethodNotAllowed},
		{name: "root redirect", method: http.MethodGet, path: "/", status: http.StatusFound},
		{name: "feeds list", method: http.MethodGet, path: "/feeds", auth: adminAuth, status: http.StatusOK},
		{name: "feed fields", method: http.MethodGet, path: "/feeds/fields", auth: adminAuth, status: http.StatusOK},
		{name: "missing feed", method: http.MethodGet, path: "/feeds/nope", auth: adminAuth, status: http.StatusNotFound},
		{name: "entry", method: http.MethodPost, path: "/forms/7/entries", body: `{"id":"1","values":{}}`, auth: apiKeyAuth, status: http.StatusOK},
		{name: "entry paid", method: http.MethodPost, path: "/forms/7/entries/paid", body: `{"id":"1","paymentStatus":"Paid"}`, auth: apiKeyAuth, status: http.StatusOK},
		{name: "entry wrong method", method: http.MethodGet, path: "/forms/7/entries", auth: apiKeyAuth, status: http.StatusMethodNotAllowed},
		{name: "unknown", method: http.MethodGet, path: "/device", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contentType := ""
			if tt.body != "" {
				contentType = "application/json"
			}
			w := httptest.NewRecorder()
			srv.router.ServeHTTP(w, newRequest(tt.method, tt.path, contentType, tt.body, tt.auth))

			assert.Equal(t, tt.status, w.Code)
			assert.NotEmpty(t, w.Header().Get(requestIDHeader))
		})
	}
}

func TestServer_RequiresAuth(t *testing.T) {
	srv, processor := newTestServer(t, nil)

	tests := []struct {
		name  string
		req   func() *http.Request
		basic bool
	}{
		{
			name:  "settings without credentials",
			req:   func() *http.Request { return newRequest(http.MethodGet, "/settings", "", "", noAuth) },
			basic: true,
		},
		{
			name: "settings wrong password",
			req: func() *http.Request {
				r := newRequest(http.MethodGet, "/settings", "", "", noAuth)
				r.SetBasicAuth(testAdminUser, "wrong")
				return r
			},
			basic: true,
		},
		{
			name: "settings form post without credentials",
			req: func() *http.Request {
				return newRequest(http.MethodPost, "/settings", "application/x-www-form-urlencoded", "client_id=x", noAuth)
			},
			basic: true,
		},
		{
			name:  "feeds with api key",
			req:   func() *http.Request { return newRequest(http.MethodGet, "/feeds", "", "", apiKeyAuth) },
			basic: true,
		},
		{
			name: "feed create without credentials",
			req: func() *http.Request {
				return newRequest(http.MethodPost, "/feeds", "application/json", `{"formId":"7"}`, noAuth)
			},
			basic: true,
		},
		{
			name: "entry without key",
			req: func() *http.Request {
				return newRequest(http.MethodPost, "/forms/7/entries", "application/json", `{"id":"1"}`, noAuth)
			},
		},
		{
			name: "entry with admin credentials",
			req: func() *http.Request {
				return newRequest(http.MethodPost, "/forms/7/entries", "application/json", `{"id":"1"}`, adminAuth)
			},
		},
		{
			name: "entry wrong key",
			req: func() *http.Request {
				r := newRequest(http.MethodPost, "/forms/7/entries/paid", "application/json", `{"id":"1"}`, noAuth)
				r.Header.Set("Authorization", "Bearer "+testAPIKey+"x")
				return r
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			srv.router.ServeHTTP(w, tt.req())

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			if tt.basic {
				assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Basic")
			} else {
				assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")
				var resp common.ErrorResponse
				require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
				assert.Equal(t, common.CodeUnauthorized, resp.Error)
			}
		})
	}
	assert.Empty(t, processor.formIDs)
}

func TestServer_RequiresJSON(t *testing.T) {
	srv, processor := newTestServer(t, nil)

	tests := []struct {
		name string
		req  *http.Request
	}{
		{name: "entry form encoded", req: newRequest(http.MethodPost, "/forms/7/entries", "application/x-www-form-urlencoded", "id=1", apiKeyAuth)},
		{name: "entry text", req: newRequest(http.MethodPost, "/forms/7/entries/paid", "text/plain", `{"id":"1"}`, apiKeyAuth)},
		{name: "feed create form encoded", req: newRequest(http.MethodPost, "/feeds", "application/x-www-form-urlencoded", "formId=7", adminAuth)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			srv.router.ServeHTTP(w, tt.req)
			assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
		})
	}
	assert.Empty(t, processor.formIDs)
}

func TestServer_RootRedirect(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "/settings", w.Header().Get("Location"))
}

func TestServer_EntryFormID(t *testing.T) {
	srv, processor := newTestServer(t, nil)

	req := newRequest(http.MethodPost, "/forms/42/entries", "application/json", `{"id":"9","values":{"1":"a"}}`, apiKeyAuth)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"42"}, processor.formIDs)
}

func TestServer_UnhealthyStore(t *testing.T) {
	srv, _ := newTestServer(t, errors.New("connection refused"))

	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp health.Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "test", resp.Version)
}

func TestServer_RecoversPanics(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	srv.router.Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
