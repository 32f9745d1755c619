package integration

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

// assertError verifies a JSON error response
func assertError(t *testing.T, resp *http.Response, body []byte, status int, expectedError string) {
	t.Helper()

	if resp.StatusCode != status {
		t.Errorf("Expected status %d, got %d: %s", status, resp.StatusCode, body)
	}

	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		t.Error("Error response must use application/json content type")
	}

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		t.Fatalf("Error response not valid JSON: %v", err)
	}

	if errResp.Error != expectedError {
		t.Errorf("Expected error '%s', got '%s'", expectedError, errResp.Error)
	}
	if errResp.ErrorDescription == "" {
		t.Error("Error response is missing error_description")
	}
}

// assertPage verifies an HTML response status and content
func assertPage(t *testing.T, resp *http.Response, body string, status int, contains ...string) {
	t.Helper()

	if resp.StatusCode != status {
		t.Errorf("Expected status %d, got %d", status, resp.StatusCode)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Errorf("Expected HTML response, got %q", resp.Header.Get("Content-Type"))
	}
	for _, want := range contains {
		if !strings.Contains(body, want) {
			t.Errorf("Response does not contain %q", want)
		}
	}
}
