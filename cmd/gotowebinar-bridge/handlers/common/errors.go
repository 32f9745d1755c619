// Package common holds the JSON response helpers shared by the handlers
package common

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/wrale/gotowebinar-bridge/internal/gotowebinar"
	"github.com/wrale/gotowebinar-bridge/internal/registration"
	"github.com/wrale/gotowebinar-bridge/internal/validation"
)

// Error codes returned in ErrorResponse.Error
const (
	CodeInvalidRequest  = "invalid_request"
	CodeNotFound        = "not_found"
	CodeNotConnected    = "not_connected"
	CodeUpstreamError   = "upstream_error"
	CodeInvalidResponse = "invalid_response"
	CodeServerError     = "server_error"
	CodeUnsupportedType = "unsupported_media_type"
	CodeUnauthorized    = "unauthorized"
)

// ErrUnsupportedMediaType is returned by DecodeJSON for a body that is not
// declared as application/json
var ErrUnsupportedMediaType = errors.New("request body must be application/json")

// ErrorResponse is the JSON error body
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	Field            string `json:"field,omitempty"`
}

// SetJSONHeaders sets the headers for JSON responses
func SetJSONHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
}

// WriteJSON writes v with the given status
func WriteJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		WriteJSONError(w, err)
		return
	}

	SetJSONHeaders(w)
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

// WriteError sends an error response
func WriteError(w http.ResponseWriter, status int, code string, description string) {
	WriteJSON(w, status, ErrorResponse{
		Error:            code,
		ErrorDescription: strings.TrimSpace(description),
	})
}

// WriteDomainError maps a domain error onto a status code and error body.
// Remote API error codes are passed through unchanged.
func WriteDomainError(w http.ResponseWriter, err error) {
	var (
		verr      *validation.ValidationError
		apiErr    *gotowebinar.APIError
		transErr  *gotowebinar.TransportError
		invalidEr *gotowebinar.InvalidResponseError
	)

	switch {
	case errors.Is(err, ErrUnsupportedMediaType):
		WriteError(w, http.StatusUnsupportedMediaType, CodeUnsupportedType, err.Error())
	case errors.As(err, &verr):
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:            CodeInvalidRequest,
			ErrorDescription: verr.Message,
			Field:            verr.Field,
		})
	case errors.Is(err, registration.ErrFeedNotFound):
		WriteError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, registration.ErrNotReady):
		WriteError(w, http.StatusConflict, CodeNotConnected, err.Error())
	case errors.As(err, &apiErr):
		WriteError(w, http.StatusBadGateway, apiErr.Code, apiErr.Message)
	case errors.As(err, &invalidEr):
		WriteError(w, http.StatusBadGateway, CodeInvalidResponse, "GoToWebinar returned an unusable response")
	case errors.As(err, &transErr):
		WriteError(w, http.StatusBadGateway, CodeUpstreamError, "GoToWebinar could not be reached")
	default:
		WriteError(w, http.StatusInternalServerError, CodeServerError, "internal error")
	}
}

// WriteJSONError handles JSON encoding failures with a fixed response
func WriteJSONError(w http.ResponseWriter, err error) {
	SetJSONHeaders(w)
	w.WriteHeader(http.StatusInternalServerError)

	errResponse := []byte(`{"error":"server_error","error_description":"Failed to encode response"}`)
	if _, writeErr := w.Write(errResponse); writeErr != nil {
		return
	}
}

// DecodeJSON decodes a request body into v, rejecting unknown fields and
// bodies not sent as application/json
func DecodeJSON(r *http.Request, v any) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return ErrUnsupportedMediaType
	}

	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return validation.New("body", "Invalid JSON body: "+err.Error())
	}
	return nil
}
