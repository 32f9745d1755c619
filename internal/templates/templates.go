// Package templates renders the HTML settings pages
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"
)

//go:embed html/*.html
var content embed.FS

// TemplateError reports a failed render. Nothing has been written to the
// response when it is returned.
type TemplateError struct {
	Message string
	Cause   error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template error: %s: %v", e.Message, e.Cause)
}

func (e *TemplateError) Unwrap() error {
	return e.Cause
}

// Templates manages the HTML templates
type Templates struct {
	settings *template.Template
	error    *template.Template
}

var funcs = template.FuncMap{
	"formatTime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(time.RFC1123)
	},
}

// LoadTemplates loads and parses all HTML templates
func LoadTemplates() (*Templates, error) {
	t := &Templates{}
	var err error

	if t.settings, err = parse("html/settings.html"); err != nil {
		return nil, err
	}
	if t.error, err = parse("html/error.html"); err != nil {
		return nil, err
	}
	return t, nil
}

func parse(page string) (*template.Template, error) {
	tmpl, err := template.New("layout.html").Funcs(funcs).ParseFS(content, "html/layout.html", page)
	if err != nil {
		return nil, &TemplateError{Message: "failed to parse " + page, Cause: err}
	}
	return tmpl, nil
}

// SettingsData holds data for the settings page. The page shows the connect
// form, the authorize link or the connected state depending on which fields
// are set.
type SettingsData struct {
	Connected       bool
	ClientID        string
	OrganizerKey    string
	TokenExpires    time.Time
	RedirectURI     string
	AuthorizeURL    string // set right after client credentials are saved
	ConnectToken    string
	DisconnectToken string
	Message         string
	Error           string
}

// RenderSettings renders the settings page with status 200
func (t *Templates) RenderSettings(w http.ResponseWriter, data SettingsData) error {
	return t.render(w, t.settings, http.StatusOK, data)
}

// ErrorData holds data for the error page
type ErrorData struct {
	Status  int // defaults to 400
	Title   string
	Message string
}

// RenderError renders the error page
func (t *Templates) RenderError(w http.ResponseWriter, data ErrorData) error {
	status := data.Status
	if status == 0 {
		status = http.StatusBadRequest
	}
	return t.render(w, t.error, status, data)
}

// RenderToString renders a template to a string
func (t *Templates) RenderToString(tmpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", &TemplateError{Message: "failed to render template", Cause: err}
	}
	return buf.String(), nil
}

// render executes into a buffer first so a failing template never leaves a
// half-written page behind
func (t *Templates) render(w http.ResponseWriter, tmpl *template.Template, status int, data interface{}) error {
	page, err := t.RenderToString(tmpl, data)
	if err != nil {
		return err
	}

	sw := t.NewSafeWriter(w)
	sw.SetStatusCode(status)
	if _, err := sw.Write([]byte(page)); err != nil {
		return fmt.Errorf("writing page: %w", err)
	}
	return nil
}

// SafeWriter writes the status line and HTML content type exactly once
type SafeWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

// NewSafeWriter wraps w
func (t *Templates) NewSafeWriter(w http.ResponseWriter) *SafeWriter {
	return &SafeWriter{ResponseWriter: w, status: http.StatusOK}
}

// SetStatusCode sets the status used when headers are first written
func (sw *SafeWriter) SetStatusCode(status int) {
	if !sw.written {
		sw.status = status
	}
}

// WriteHeader sends headers once; later calls are ignored
func (sw *SafeWriter) WriteHeader(status int) {
	if sw.written {
		return
	}
	sw.written = true
	sw.Header().Set("Content-Type", "text/html; charset=utf-8")
	sw.ResponseWriter.WriteHeader(status)
}

// Write sends headers with the configured status before the first write
func (sw *SafeWriter) Write(b []byte) (int, error) {
	if !sw.written {
		sw.WriteHeader(sw.status)
	}
	return sw.ResponseWriter.Write(b)
}

// Written reports whether headers have been sent
func (sw *SafeWriter) Written() bool {
	return sw.written
}
