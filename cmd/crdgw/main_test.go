package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/crd"
	"github.com/kailas-cloud/crd/envelope"
	"github.com/kailas-cloud/crd/internal/config"
	chiTransport "github.com/kailas-cloud/crd/internal/transport/chi"
)

type panicSearcher struct{}

func (panicSearcher) Resolve(context.Context, *crd.Request) (envelope.Outcome, error) {
	panic("boom")
}

func (panicSearcher) SearchPages(context.Context, *crd.Request, int) ([]*envelope.Page, error) {
	panic("boom")
}

func testConfig(t *testing.T, keys ...string) config.Config {
	t.Helper()
	cfg := config.Config{HTTP: config.HTTPConfig{Port: 8080}, Auth: config.AuthConfig{APIKeys: keys}}
	cfg.ApplyDefaults()
	return cfg
}

func TestRouter_HealthAndAccessLog(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := newRouter(testConfig(t), panicSearcher{}, zap.New(core))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not set")
	}
	entries := logs.FilterMessage("http_request").All()
	if len(entries) != 1 {
		t.Fatalf("access log entries = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["path"]; got != "/health" {
		t.Errorf("path = %v, want /health", got)
	}
}

func TestRouter_PanicBecomesJSON(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := newRouter(testConfig(t), panicSearcher{}, zap.New(core))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?q=x", http.NoBody))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body chiTransport.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != chiTransport.CodeInternalError {
		t.Errorf("code = %q", body.Code)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Error("panic not logged")
	}
}

func TestRouter_Auth(t *testing.T) {
	h := newRouter(testConfig(t, "secret"), panicSearcher{}, zap.NewNop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?q=x", http.NoBody))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
}

func TestNewClient(t *testing.T) {
	cfg := testConfig(t)
	cfg.Search.LenientItems = true
	c, err := newClient(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("newClient: %v", err)
	}
	if c.Endpoint() != cfg.Upstream.Endpoint {
		t.Errorf("Endpoint = %q", c.Endpoint())
	}
}
