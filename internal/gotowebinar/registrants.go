package gotowebinar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/wrale/gotowebinar-bridge/internal/validation"
)

// RegistrantAccept selects the v1.1 registrant representation, which
// accepts the full set of registration fields.
const RegistrantAccept = "application/vnd.citrix.g2wapi-v1.1+json"

// Registrant is the API response for a created registrant
type Registrant struct {
	RegistrantKey json.Number     `json:"registrantKey"`
	JoinURL       string          `json:"joinUrl"`
	Status        string          `json:"status,omitempty"`
	Raw           json.RawMessage `json:"-"`
}

// Webinar holds the webinar fields the bridge cares about
type Webinar struct {
	WebinarKey      json.Number `json:"webinarKey"`
	Subject         string      `json:"subject"`
	Description     string      `json:"description,omitempty"`
	RegistrationURL string      `json:"registrationUrl,omitempty"`
	TimeZone        string      `json:"timeZone,omitempty"`
}

// CreateRegistrant registers payload for a webinar and asks GoToWebinar to
// resend the confirmation email.
func (c *Client) CreateRegistrant(ctx context.Context, organizerKey, webinarID string, payload map[string]string) (*Registrant, error) {
	if err := validation.Required("organizer_key", organizerKey, "Organizer key required."); err != nil {
		return nil, err
	}
	if err := validation.Required(validation.FieldWebinarID, webinarID, "Webinar ID required."); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("organizers/%s/webinars/%s/registrants?resendConfirmation=true",
		url.PathEscape(organizerKey), url.PathEscape(webinarID))

	raw, err := c.Post(ctx, endpoint, payload, Envelope{
		Header: map[string]string{"Accept": RegistrantAccept},
	})
	if err != nil {
		return nil, err
	}

	registrant := &Registrant{Raw: raw}
	if err := json.Unmarshal(raw, registrant); err != nil {
		// Registration succeeded; keep the raw body for the caller.
		c.logger.Sugar().Debugf("unexpected registrant response shape: %v", err)
	}
	return registrant, nil
}

// Webinar fetches a single webinar
func (c *Client) Webinar(ctx context.Context, organizerKey, webinarID string) (*Webinar, error) {
	if err := validation.Required("organizer_key", organizerKey, "Organizer key required."); err != nil {
		return nil, err
	}
	if err := validation.Required(validation.FieldWebinarID, webinarID, "Webinar ID required."); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("organizers/%s/webinars/%s", url.PathEscape(organizerKey), url.PathEscape(webinarID))
	raw, err := c.Get(ctx, endpoint, nil, Envelope{})
	if err != nil {
		return nil, err
	}

	var webinar Webinar
	if err := json.Unmarshal(raw, &webinar); err != nil {
		return nil, &InvalidResponseError{Body: string(raw)}
	}
	return &webinar, nil
}
