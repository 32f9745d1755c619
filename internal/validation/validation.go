// Package validation provides local input validation for the webinar bridge.
// Failures are reported before anything is sent over the network.
package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Field names used in validation errors
const (
	FieldAuthorizationCode = "authorization_code"
	FieldRefreshToken      = "refresh_token"
	FieldClientID          = "client_id"
	FieldClientSecret      = "client_secret"
	FieldWebinarID         = "webinar_id"
	FieldFieldMap          = "field_map"
	FieldFormID            = "form_id"
	FieldPaymentStatus     = "payment_status"
)

// webinarKeyRegex matches the numeric webinar keys issued by GoToWebinar.
var webinarKeyRegex = regexp.MustCompile(`^[0-9]{6,20}$`)

// ValidationError represents a missing or malformed local input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// New creates a validation error for field
func New(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Required returns a validation error carrying message when value is blank
func Required(field, value, message string) error {
	if strings.TrimSpace(value) == "" {
		return New(field, message)
	}
	return nil
}

// ValidateWebinarID checks a resolved webinar id.
// Feeds may carry merge tags, so only resolved ids are checked for format.
func ValidateWebinarID(id string) error {
	id = NormalizeWebinarID(id)
	if id == "" {
		return New(FieldWebinarID, "Webinar ID required.")
	}
	if !webinarKeyRegex.MatchString(id) {
		return New(FieldWebinarID, fmt.Sprintf("Webinar ID %q must be numeric.", id))
	}
	return nil
}

// NormalizeWebinarID strips whitespace and the dashes GoToWebinar shows in
// its UI (e.g. 123-456-789).
func NormalizeWebinarID(id string) string {
	return strings.ReplaceAll(strings.TrimSpace(id), "-", "")
}

// ValidateFieldMap checks that every mapped name is one of allowed.
// Unknown names are reported together, sorted, so callers get one stable message.
func ValidateFieldMap(fieldMap map[string]string, allowed []string) error {
	known := make(map[string]struct{}, len(allowed))
	for _, name := range allowed {
		known[name] = struct{}{}
	}

	var unknown []string
	for name := range fieldMap {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) == 0 {
		return nil
	}

	sort.Strings(unknown)
	return New(FieldFieldMap, "unknown registrant fields: "+strings.Join(unknown, ", "))
}
