package templates

import (
	"net/http/httptest"
	"strings"
	"testing"
)

// pageRecorder records a rendered page and counts how often the status
// line was written
type pageRecorder struct {
	*httptest.ResponseRecorder
	headerWrites int
}

func newPageRecorder() *pageRecorder {
	return &pageRecorder{ResponseRecorder: httptest.NewRecorder()}
}

func (p *pageRecorder) WriteHeader(code int) {
	p.headerWrites++
	p.ResponseRecorder.WriteHeader(code)
}

func (p *pageRecorder) page() string {
	return p.Body.String()
}

// missing returns the strings the page does not contain
func (p *pageRecorder) missing(ss ...string) []string {
	var out []string
	for _, s := range ss {
		if !strings.Contains(p.page(), s) {
			out = append(out, s)
		}
	}
	return out
}

func loadTestTemplates(t *testing.T) *Templates {
	t.Helper()
	tmpls, err := LoadTemplates()
	if err != nil {
		t.Fatalf("LoadTemplates() error = %v", err)
	}
	return tmpls
}
