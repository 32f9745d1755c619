// Package gotowebinar implements the GoToWebinar REST and OAuth client used
// to register webinar attendees.
package gotowebinar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	// DefaultBaseURL is the GoToWebinar REST API root
	DefaultBaseURL = "https://api.getgo.com/G2W/rest/v2"

	// DefaultAuthURL is the GoTo OAuth root
	DefaultAuthURL = "https://api.getgo.com/oauth/v2"

	// DefaultTimeout bounds every request unless the envelope sets its own
	DefaultTimeout = 30 * time.Second

	maxBodySize = 1 << 20
)

// Request outcomes reported to the observer
const (
	OutcomeOK              = "ok"
	OutcomeTransportError  = "transport_error"
	OutcomeInvalidResponse = "invalid_response"
	OutcomeAPIError        = "api_error"
)

// RequestObserver receives one observation per completed request
type RequestObserver interface {
	ObserveRequest(method, target, outcome string, elapsed time.Duration)
}

// Envelope describes a single API request. Zero fields fall back to the
// client defaults; Header entries override the default headers key by key.
type Envelope struct {
	Method  string
	Header  map[string]string
	Body    []byte
	Timeout time.Duration
}

// Client issues authenticated requests against the GoToWebinar API
type Client struct {
	httpClient *http.Client
	baseURL    string
	authURL    string
	timeout    time.Duration
	tokens     oauth2.TokenSource
	observer   RequestObserver
	logger     *zap.Logger
}

// NewClient creates a client with the production endpoints unless overridden
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		baseURL:    DefaultBaseURL,
		authURL:    DefaultAuthURL,
		timeout:    DefaultTimeout,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTokenSource returns a copy of the client that reads its bearer token
// from ts. The token source is consulted on every request and never asked
// to refresh; staleness is the caller's concern.
func (c *Client) WithTokenSource(ts oauth2.TokenSource) *Client {
	cp := *c
	cp.tokens = ts
	return &cp
}

// Timeout returns the default per-request timeout
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// BaseURL returns the REST root the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get issues a GET to {base}/{endpoint} with params appended to the query
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values, overrides Envelope) (json.RawMessage, error) {
	u, err := url.Parse(c.endpointURL(endpoint))
	if err != nil {
		return nil, &TransportError{Method: http.MethodGet, URL: endpoint, Err: err}
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	overrides.Method = http.MethodGet
	overrides.Body = nil
	return c.Request(ctx, u.String(), overrides)
}

// Post issues a POST to {base}/{endpoint} with params encoded as JSON
func (c *Client) Post(ctx context.Context, endpoint string, params any, overrides Envelope) (json.RawMessage, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}

	header := cloneHeader(overrides.Header)
	if _, ok := header["Content-Type"]; !ok {
		header["Content-Type"] = "application/json"
	}

	overrides.Method = http.MethodPost
	overrides.Header = header
	overrides.Body = body
	return c.Request(ctx, c.endpointURL(endpoint), overrides)
}

// Request performs a single HTTP call and normalizes the result. Transport
// failures come back as *TransportError, unusable bodies as
// *InvalidResponseError and remote error objects as *APIError. Nothing is
// retried.
func (c *Client) Request(ctx context.Context, rawURL string, env Envelope) (json.RawMessage, error) {
	env, err := c.merge(env)
	if err != nil {
		return nil, err
	}

	target := c.target(rawURL)
	start := time.Now()

	data, err := c.do(ctx, rawURL, env)
	if err != nil {
		c.observe(env.Method, target, OutcomeTransportError, start)
		c.logger.Warn("gotowebinar request failed",
			zap.String("method", env.Method),
			zap.String("target", target),
			zap.Error(err))
		return nil, err
	}

	result, err := decodeResponse(data)
	switch err.(type) {
	case nil:
		c.observe(env.Method, target, OutcomeOK, start)
	case *APIError:
		c.observe(env.Method, target, OutcomeAPIError, start)
	default:
		c.observe(env.Method, target, OutcomeInvalidResponse, start)
	}
	if err != nil {
		c.logger.Warn("gotowebinar request rejected",
			zap.String("method", env.Method),
			zap.String("target", target),
			zap.Error(err))
		return nil, err
	}

	c.logger.Debug("gotowebinar request completed",
		zap.String("method", env.Method),
		zap.String("target", target),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

// do sends the request and returns the raw body
func (c *Client) do(ctx context.Context, rawURL string, env Envelope) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, env.Timeout)
	defer cancel()

	var body io.Reader
	if env.Body != nil {
		body = bytes.NewReader(env.Body)
	}

	req, err := http.NewRequestWithContext(ctx, env.Method, rawURL, body)
	if err != nil {
		return nil, &TransportError{Method: env.Method, URL: rawURL, Err: err}
	}
	for k, v := range env.Header {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Method: env.Method, URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &TransportError{Method: env.Method, URL: rawURL, Err: fmt.Errorf("reading response: %w", err)}
	}
	return data, nil
}

// merge layers the envelope over the client defaults
func (c *Client) merge(env Envelope) (Envelope, error) {
	if env.Method == "" {
		env.Method = http.MethodGet
	}
	if env.Timeout <= 0 {
		env.Timeout = c.timeout
	}

	accessToken := ""
	if c.tokens != nil {
		tok, err := c.tokens.Token()
		if err != nil {
			return env, fmt.Errorf("reading access token: %w", err)
		}
		if tok != nil {
			accessToken = tok.AccessToken
		}
	}

	header := map[string]string{
		"Accept":        "application/json",
		"Authorization": "Bearer " + accessToken,
	}
	for k, v := range env.Header {
		header[http.CanonicalHeaderKey(k)] = v
	}
	env.Header = header

	return env, nil
}

func (c *Client) endpointURL(endpoint string) string {
	return c.baseURL + "/" + strings.TrimPrefix(endpoint, "/")
}

// target is a low-cardinality label for logs and metrics
func (c *Client) target(rawURL string) string {
	if strings.HasPrefix(rawURL, c.authURL) {
		return "oauth"
	}
	return "rest"
}

func (c *Client) observe(method, target, outcome string, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveRequest(method, target, outcome, time.Since(start))
	}
}

// decodeResponse validates a body and surfaces remote error objects
func decodeResponse(data []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil || dec.More() || isEmptyValue(value) {
		return nil, &InvalidResponseError{Body: string(data)}
	}

	if obj, ok := value.(map[string]any); ok {
		if code, ok := obj["error"]; ok && code != nil {
			apiErr := &APIError{Code: stringValue(code)}
			if desc, ok := obj["error_description"]; ok && desc != nil {
				apiErr.Message = stringValue(desc)
			}
			return nil, apiErr
		}
	}

	return json.RawMessage(append([]byte(nil), trimmed...)), nil
}

// isEmptyValue reports JSON values that carry nothing usable:
// null, false, zero, the empty string and the empty array.
func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case string:
		return t == "" || t == "0"
	case json.Number:
		f, err := t.Float64()
		return err == nil && f == 0
	case []any:
		return len(t) == 0
	}
	return false
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func cloneHeader(h map[string]string) map[string]string {
	out := make(map[string]string, len(h)+1)
	for k, v := range h {
		out[http.CanonicalHeaderKey(k)] = v
	}
	return out
}
