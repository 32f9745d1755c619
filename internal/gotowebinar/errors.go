package gotowebinar

import (
	"fmt"
)

// TransportError reports a failure of the HTTP layer itself: DNS, TLS,
// connection resets and timeouts. The request never produced a body.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// InvalidResponseError reports a response body that is not JSON or decodes
// to an empty value. Body holds the raw text, often an HTML error page.
type InvalidResponseError struct {
	Body string
}

func (e *InvalidResponseError) Error() string {
	if e.Body == "" {
		return "invalid response: empty body"
	}
	return "invalid response: " + e.Body
}

// APIError is an application-level failure signalled by the remote API
// through the error and error_description fields, whatever the HTTP status.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Message
}
