package gotowebinar

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Option configures the API client
type Option func(*Client)

// WithBaseURL sets the REST base URL
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithAuthURL sets the OAuth base URL used for the authorize and token endpoints
func WithAuthURL(u string) Option {
	return func(c *Client) {
		c.authURL = strings.TrimSuffix(u, "/")
	}
}

// WithTimeout sets the default per-request timeout.
// Envelopes with their own timeout override it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the client logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver sets the request observer used for metrics
func WithObserver(o RequestObserver) Option {
	return func(c *Client) {
		c.observer = o
	}
}
