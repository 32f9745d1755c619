package integration

import (
	"bytes"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

// getSettings fetches the settings page and returns its HTML
func getSettings(t *testing.T, s *TestSuite, query string) (*http.Response, string) {
	t.Helper()

	target := s.URL("/settings")
	if query != "" {
		target += "?" + query
	}

	req, err := http.NewRequestWithContext(s.Ctx, http.MethodGet, target, nil)
	if err != nil {
		t.Fatalf("Failed to create settings request: %v", err)
	}

	resp, err := s.DoRequest(req)
	if err != nil {
		t.Fatalf("Settings request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := s.ReadBody(resp)
	if err != nil {
		t.Fatalf("Failed to read settings page: %v", err)
	}
	return resp, string(body)
}

// postSettings submits the settings form
func postSettings(t *testing.T, s *TestSuite, form url.Values) (*http.Response, string) {
	t.Helper()

	req, err := http.NewRequestWithContext(s.Ctx, http.MethodPost, s.URL("/settings"),
		strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("Failed to create settings form request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.DoRequest(req)
	if err != nil {
		t.Fatalf("Settings form request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := s.ReadBody(resp)
	if err != nil {
		t.Fatalf("Failed to read settings form response: %v", err)
	}
	return resp, string(body)
}

// doJSON sends a JSON request and returns the response with its body
func doJSON(t *testing.T, s *TestSuite, method, path, body string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequestWithContext(s.Ctx, method, s.URL(path), bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("Failed to create %s %s request: %v", method, path, err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.DoRequest(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := s.ReadBody(resp)
	if err != nil {
		t.Fatalf("Failed to read %s %s response: %v", method, path, err)
	}
	return resp, data
}
