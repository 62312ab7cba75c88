package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/insites-io/module-ai/internal/config"
	"github.com/insites-io/module-ai/internal/stream"
)

func testHandler(t *testing.T) http.Handler {
	t.Helper()
	cfg := config.ServerConfig{
		RequestTimeout: time.Second,
		PingInterval:   time.Minute,
		AllowedOrigins: []string{"https://app.example"},
	}
	reg := stream.NewRegistry()
	agent := &fakeAgent{text: "ok"}
	sub := stream.NewSubmitter(reg, agent, nil, cfg.RequestTimeout)
	return New(cfg, reg, sub, agent, nil)
}

func TestRouterStatus(t *testing.T) {
	h := testHandler(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "healthy" || resp["service"] != "CRM Assistant Gateway" {
		t.Fatalf("response %+v", resp)
	}
}

func TestRouterHealthz(t *testing.T) {
	h := testHandler(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("status %d body %q", rec.Code, rec.Body.String())
	}
}

func TestRouterMetrics(t *testing.T) {
	h := testHandler(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	h := testHandler(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d", rec.Code)
	}
}
