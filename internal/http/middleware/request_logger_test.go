package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kestrelhq/realty-ai-platform/pkg/logging"
)

func TestRequestLoggerIncludesSessionAndStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter("info", &buf)

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	req.Header.Set("X-Session-Id", "sess-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if !strings.Contains(out, `"session_id":"sess-42"`) {
		t.Fatalf("expected session_id in log output, got: %s", out)
	}
	if !strings.Contains(out, `"status":418`) {
		t.Fatalf("expected response status in log output, got: %s", out)
	}
	if !strings.Contains(out, "request completed") {
		t.Fatalf("expected completion log line, got: %s", out)
	}
}

func TestRequestLoggerOmitsMissingSession(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter("info", &buf)

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	out := buf.String()
	if strings.Contains(out, "session_id") {
		t.Fatalf("no session header was sent, log must not carry session_id: %s", out)
	}
	if !strings.Contains(out, `"status":200`) {
		t.Fatalf("implicit 200 must be logged, got: %s", out)
	}
}
