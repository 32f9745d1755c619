package gotowebinar

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Grant types accepted by the token endpoint
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
)

// TokenResponse is the token endpoint payload. Expires is filled in by the
// caller from the time the request was sent.
type TokenResponse struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	OrganizerKey string    `json:"organizer_key"`
	AccountKey   string    `json:"account_key,omitempty"`
	Email        string    `json:"email,omitempty"`
	FirstName    string    `json:"firstName,omitempty"`
	LastName     string    `json:"lastName,omitempty"`
	Expires      time.Time `json:"expires"`
}

// Endpoint returns the OAuth endpoints in x/oauth2 form.
// Client credentials travel in the Authorization header.
func (c *Client) Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   c.authURL + "/authorize",
		TokenURL:  c.authURL + "/token",
		AuthStyle: oauth2.AuthStyleInHeader,
	}
}

// AuthorizeURL builds the browser redirect that starts the
// authorization-code grant. Parameter order is fixed.
func (c *Client) AuthorizeURL(clientID, redirectURI string) string {
	params := []struct{ key, value string }{
		{"client_id", clientID},
		{"response_type", "code"},
		{"redirect_uri", redirectURI},
	}

	var b strings.Builder
	b.WriteString(c.Endpoint().AuthURL)
	for i, p := range params {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String()
}

// Token posts form to the token endpoint using HTTP Basic client
// authentication. Credentials must already be validated by the caller.
func (c *Client) Token(ctx context.Context, clientID, clientSecret string, form url.Values) (*TokenResponse, error) {
	basic := base64.StdEncoding.EncodeToString([]byte(clientID + ":" + clientSecret))

	raw, err := c.Request(ctx, c.Endpoint().TokenURL, Envelope{
		Method: http.MethodPost,
		Header: map[string]string{
			"Authorization": "Basic " + basic,
			"Content-Type":  "application/x-www-form-urlencoded",
		},
		Body: []byte(form.Encode()),
	})
	if err != nil {
		return nil, err
	}

	var token TokenResponse
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, &InvalidResponseError{Body: string(raw)}
	}
	return &token, nil
}
