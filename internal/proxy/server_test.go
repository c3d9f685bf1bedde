package proxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/toolgate/toolgate/internal/accounting"
	"github.com/toolgate/toolgate/internal/openai"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	registry, _ := testRegistry("get_time", "get_date")
	cfg := testConfig("http://backend")
	o := newTestOrchestrator(cfg, registry)
	return NewServer(cfg, o, registry, accounting.Noop{}, testLogger())
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body openai.Payload
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
}

func TestHandleHealthRejectsPost(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/v1/proxy/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body openai.Payload
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("status body is not JSON: %v", err)
	}
	toolInfo := body["tools"].(map[string]any)
	if toolInfo["count"] != float64(2) {
		t.Errorf("tool count = %v, want 2", toolInfo["count"])
	}
	names := toolInfo["names"].([]any)
	if len(names) != 2 || names[0] != "get_time" {
		t.Errorf("tool names = %v", names)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	handler := s.cors(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler should not run on preflight")
	})

	req := httptest.NewRequest(http.MethodOptions, "/v1/chat/completions", nil)
	req.Header.Set("Origin", "http://app.example")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("CORS headers missing")
	}
}
