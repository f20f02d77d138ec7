package httpapi

import (
	"testing"

	"github.com/alexxx-db/apx/internal/infrastructure/config"
	obs "github.com/alexxx-db/apx/internal/infrastructure/observability"
)

func newTestProxy(cfg config.Config) *Proxy {
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api"
	}
	return NewProxy(cfg, obs.NewLogger("error"), obs.NewMetrics())
}

func TestResolve_PrefixBoundary(t *testing.T) {
	p := newTestProxy(config.Config{
		FrontendURL: "http://localhost:5173",
		BackendURL:  "http://localhost:8000",
		APIPrefix:   "/api",
	})

	cases := []struct {
		path   string
		target string
	}{
		{"/api/version", "api"},
		{"/api", "api"},
		{"/api/", "api"},
		{"/api/users?ignored", "api"}, // query never reaches resolve, still boundary-safe
		{"/", "ui"},
		{"/apiabc", "ui"},
		{"/apix/version", "ui"},
		{"/index.html", "ui"},
		{"/app/api/users", "ui"},
	}
	for _, c := range cases {
		base, target := p.resolve(c.path)
		if target != c.target {
			t.Errorf("resolve(%q) target = %q, want %q", c.path, target, c.target)
		}
		wantBase := "http://localhost:5173"
		if c.target == "api" {
			wantBase = "http://localhost:8000"
		}
		if base != wantBase {
			t.Errorf("resolve(%q) base = %q, want %q", c.path, base, wantBase)
		}
	}
}

func TestResolve_CustomPrefix(t *testing.T) {
	p := newTestProxy(config.Config{
		FrontendURL: "http://localhost:5173",
		BackendURL:  "http://localhost:8000",
		APIPrefix:   "/backend",
	})
	if _, target := p.resolve("/backend/health"); target != "api" {
		t.Fatalf("expected /backend/health to resolve to api, got %s", target)
	}
	if _, target := p.resolve("/api/health"); target != "ui" {
		t.Fatalf("expected /api/health to resolve to ui with custom prefix, got %s", target)
	}
}

func TestWSScheme(t *testing.T) {
	if got := wsScheme("http://localhost:8000"); got != "ws://localhost:8000" {
		t.Fatalf("wsScheme http = %q", got)
	}
	if got := wsScheme("https://example.com"); got != "wss://example.com" {
		t.Fatalf("wsScheme https = %q", got)
	}
}
