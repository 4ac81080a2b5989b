package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.DebugLevel)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestLoggerLevels(t *testing.T) {
	cases := []struct {
		path   string
		status int
		level  string
	}{
		{"/api/v1/runs", http.StatusOK, `"level":"info"`},
		{"/health", http.StatusOK, `"level":"debug"`},
		{"/api/v1/runs/x", http.StatusNotFound, `"level":"warn"`},
		{"/api/v1/generate/qa", http.StatusServiceUnavailable, `"level":"error"`},
	}
	for _, tc := range cases {
		buf := captureLogs(t)
		handler := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			w.Write([]byte("body"))
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tc.path, nil))

		out := buf.String()
		if !strings.Contains(out, tc.level) {
			t.Errorf("%s %d: log %q missing %s", tc.path, tc.status, out, tc.level)
		}
		if !strings.Contains(out, `"bytes":4`) {
			t.Errorf("%s: log %q missing byte count", tc.path, out)
		}
	}
}

func TestTelemetryPassesThrough(t *testing.T) {
	handler := Telemetry(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))
	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTeapot)
	}
}
