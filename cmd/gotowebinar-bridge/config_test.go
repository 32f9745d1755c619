package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret        = "0123456789abcdef0123456789abcdef"
	testAdminUser     = "admin"
	testAdminPassword = "correct-horse-battery"
	testAPIKey        = "entries-key-0123456789"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("BASE_URL", "https://bridge.example.com/")
	t.Setenv("CSRF_SECRET", testSecret)
	t.Setenv("ADMIN_USERNAME", testAdminUser)
	t.Setenv("ADMIN_PASSWORD", testAdminPassword)
	t.Setenv("ENTRIES_API_KEY", testAPIKey)
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := loadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "https://bridge.example.com", cfg.BaseURL)
	assert.Equal(t, "https://bridge.example.com/settings", cfg.RedirectURI())
	assert.Equal(t, "https://api.getgo.com/G2W/rest/v2", cfg.GoToAPIURL)
	assert.Equal(t, "https://api.getgo.com/oauth/v2", cfg.GoToAuthURL)
	assert.Equal(t, "gotowebinar:settings", cfg.SettingsKey)
	assert.Equal(t, "@daily", cfg.RefreshSchedule)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 15*time.Minute, cfg.CSRFTokenExpiry)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, testAdminUser, cfg.AdminUsername)
	assert.Equal(t, testAdminPassword, cfg.AdminPassword)
	assert.Equal(t, testAPIKey, cfg.EntriesAPIKey)
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("REFRESH_SCHEDULE", "0 3 * * *")
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := loadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "0 3 * * *", cfg.RefreshSchedule)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "console", cfg.LogFormat)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "relative base url", env: map[string]string{"BASE_URL": "/bridge"}},
		{name: "short csrf secret", env: map[string]string{"CSRF_SECRET": "short"}},
		{name: "missing redis url", env: map[string]string{"REDIS_URL": ""}},
		{name: "handler timeout too long", env: map[string]string{"HANDLER_TIMEOUT": "2m"}},
		{name: "bad port", env: map[string]string{"PORT": "http"}},
		{name: "missing admin user", env: map[string]string{"ADMIN_USERNAME": ""}},
		{name: "short admin password", env: map[string]string{"ADMIN_PASSWORD": "hunter2"}},
		{name: "short entries key", env: map[string]string{"ENTRIES_API_KEY": "abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := loadConfig()
			assert.Error(t, err)
		})
	}
}
