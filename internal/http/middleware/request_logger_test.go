package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wolfman30/payment-sms-relay/pkg/logging"
)

func TestRequestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter("info", &buf)

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"status":"queued"}`))
	}))
	req := httptest.NewRequest(http.MethodPost, "/ingest/sms", nil)
	req.Header.Set("X-Request-ID", "req-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected one json log line, got %q: %v", buf.String(), err)
	}
	if entry["status"] != float64(http.StatusAccepted) {
		t.Fatalf("expected status 202, got %v", entry["status"])
	}
	if entry["request_id"] != "req-1" {
		t.Fatalf("expected request id, got %v", entry["request_id"])
	}
	if entry["component"] != "http" {
		t.Fatalf("expected http component, got %v", entry["component"])
	}
}

func TestRequestLoggerQuietForProbes(t *testing.T) {
	var buf bytes.Buffer
	handler := RequestLogger(logging.NewWithWriter("info", &buf))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if strings.TrimSpace(buf.String()) != "" {
		t.Fatalf("expected no info log for /health, got %q", buf.String())
	}
}
