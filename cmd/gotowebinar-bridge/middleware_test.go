package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLogger(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		requestID string
		level     zapcore.Level
	}{
		{name: "ok", status: http.StatusOK, level: zapcore.InfoLevel},
		{name: "client error", status: http.StatusNotFound, level: zapcore.WarnLevel},
		{name: "server error", status: http.StatusBadGateway, level: zapcore.ErrorLevel},
		{name: "incoming id", status: http.StatusOK, requestID: "req-1", level: zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			h := requestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			req := httptest.NewRequest(http.MethodGet, "/settings?code=secret", nil)
			if tt.requestID != "" {
				req.Header.Set(requestIDHeader, tt.requestID)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			got := w.Header().Get(requestIDHeader)
			if tt.requestID != "" {
				assert.Equal(t, tt.requestID, got)
			} else {
				_, err := uuid.Parse(got)
				assert.NoError(t, err)
			}

			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			assert.Equal(t, tt.level, entry.Level)

			fields := entry.ContextMap()
			assert.Equal(t, int64(tt.status), fields["status"])
			assert.Equal(t, "/settings", fields["path"])
			assert.Equal(t, got, fields["request_id"])
		})
	}
}

func TestRequestLogger_ImplicitStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := requestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, int64(http.StatusOK), logs.All()[0].ContextMap()["status"])
}
