package integration

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alexxx-db/apx/internal/infrastructure/config"
	httpapi "github.com/alexxx-db/apx/internal/infrastructure/httpapi"
	obs "github.com/alexxx-db/apx/internal/infrastructure/observability"
)

// Global timeout guard for the integration package to avoid indefinite hangs.
func TestMain(m *testing.M) {
	timeout := 2 * time.Minute
	if v := os.Getenv("INTEGRATION_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			timeout = time.Duration(n) * time.Second
		}
	}
	timer := time.AfterFunc(timeout, func() {
		fmt.Fprintf(os.Stderr, "\nglobal timeout %s reached, aborting tests\n", timeout)
		os.Exit(3)
	})
	code := m.Run()
	_ = timer.Stop()
	os.Exit(code)
}

func testConfig() config.Config {
	return config.Config{
		LogLevel:           "error",
		APIPrefix:          "/api",
		WSOpenTimeout:      2 * time.Second,
		ConnectTimeout:     2 * time.Second,
		RequestTimeout:     5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		MaxConnections:     100,
		MaxIdleConnections: 20,
	}
}

// newProxyServer starts the proxy in front of the given upstreams.
func newProxyServer(t *testing.T, cfg config.Config) (*httptest.Server, *httpapi.Proxy) {
	t.Helper()
	logger := obs.NewLogger("error")
	metrics := obs.NewMetrics()
	proxy := httpapi.NewProxy(cfg, logger, metrics)
	deps := &httpapi.Deps{Cfg: cfg, Logger: logger, Metrics: metrics, Proxy: proxy}
	srv := httptest.NewServer(httpapi.NewRouterWithDeps(deps))
	t.Cleanup(srv.Close)
	return srv, proxy
}

// wsURL rewrites an httptest server URL into a ws:// URL for the given path.
func wsURL(serverURL, path string) string {
	return "ws://" + strings.TrimPrefix(serverURL, "http://") + path
}

// waitForActive polls the proxy until the number of open WebSocket sessions
// matches want.
func waitForActive(t *testing.T, p *httpapi.Proxy, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if p.ActiveWebSocketCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("active websocket count = %d, want %d", p.ActiveWebSocketCount(), want)
}

func mustGet(t *testing.T, client *http.Client, url string) *http.Response {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	return resp
}
