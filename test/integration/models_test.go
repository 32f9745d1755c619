package integration

// errorResponse is the JSON error body of the feeds and entries API
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Field            string `json:"field"`
}

type fieldsResponse struct {
	Fields []struct {
		Name  string `json:"name"`
		Label string `json:"label"`
	} `json:"fields"`
}

type healthResponse struct {
	Status  string         `json:"status"`
	Version string         `json:"version"`
	Details map[string]any `json:"details"`
}

// Error codes returned by the API
const (
	ErrInvalidRequest = "invalid_request"
	ErrNotFound       = "not_found"
	ErrNotConnected   = "not_connected"
)
