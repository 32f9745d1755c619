package main

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds server configuration loaded from environment variables
type Config struct {
	Port        int    `envconfig:"PORT" default:"8080"`
	RedisURL    string `envconfig:"REDIS_URL" required:"true"`
	BaseURL     string `envconfig:"BASE_URL" required:"true"`
	GoToAPIURL  string `envconfig:"GOTO_API_URL" default:"https://api.getgo.com/G2W/rest/v2"`
	GoToAuthURL string `envconfig:"GOTO_AUTH_URL" default:"https://api.getgo.com/oauth/v2"`
	SettingsKey string `envconfig:"SETTINGS_KEY" default:"gotowebinar:settings"`
	FeedPrefix  string `envconfig:"FEED_KEY_PREFIX" default:"gotowebinar:"`

	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	RefreshSchedule string        `envconfig:"REFRESH_SCHEDULE" default:"@daily"`

	// AdminUsername and AdminPassword guard the settings page and feed API
	AdminUsername string `envconfig:"ADMIN_USERNAME" required:"true"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD" required:"true"`
	// EntriesAPIKey is the bearer token form hooks send to the entry endpoints
	EntriesAPIKey string `envconfig:"ENTRIES_API_KEY" required:"true"`

	CSRFSecret      string        `envconfig:"CSRF_SECRET" required:"true"`
	CSRFTokenExpiry time.Duration `envconfig:"CSRF_TOKEN_EXPIRY" default:"15m"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
	ReadTimeout       time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"60s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`
	HandlerTimeout    time.Duration `envconfig:"HANDLER_TIMEOUT" default:"55s"`
	ShutdownTimeout   time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

const minSecretLen = 16

// loadConfig reads and checks the environment
func loadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return cfg, nil
}

func (c Config) validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL must not be empty")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BASE_URL must be an absolute URL, got %q", c.BaseURL)
	}
	if c.AdminUsername == "" || c.AdminPassword == "" {
		return fmt.Errorf("ADMIN_USERNAME and ADMIN_PASSWORD must not be empty")
	}
	if len(c.AdminPassword) < minSecretLen {
		return fmt.Errorf("ADMIN_PASSWORD must be at least %d bytes", minSecretLen)
	}
	if len(c.EntriesAPIKey) < minSecretLen {
		return fmt.Errorf("ENTRIES_API_KEY must be at least %d bytes", minSecretLen)
	}
	if len(c.CSRFSecret) < 32 {
		return fmt.Errorf("CSRF_SECRET must be at least 32 bytes")
	}
	if c.HandlerTimeout >= c.WriteTimeout {
		return fmt.Errorf("HANDLER_TIMEOUT (%s) must be shorter than WRITE_TIMEOUT (%s)", c.HandlerTimeout, c.WriteTimeout)
	}
	return nil
}

// RedirectURI is the OAuth redirect registered with the GoTo client; the
// settings page handles the callback
func (c Config) RedirectURI() string {
	return c.BaseURL + "/settings"
}
