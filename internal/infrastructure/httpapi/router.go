package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/alexxx-db/apx/internal/infrastructure/config"
	obs "github.com/alexxx-db/apx/internal/infrastructure/observability"
)

// Management endpoints live under this prefix so they can never shadow a
// proxied application path.
const managementPrefix = "/__apx__"

type Deps struct {
	Cfg     config.Config
	Logger  *zerolog.Logger
	Metrics *obs.Metrics
	Proxy   *Proxy
}

func NewRouterWithDeps(d *Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(managementPrefix+"/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc(managementPrefix+"/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !d.Proxy.Accepting() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("shutting down"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	mux.Handle(managementPrefix+"/metrics", promhttp.HandlerFor(d.Metrics.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc(managementPrefix+"/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name":    "apx-dev",
			"version": obs.Version,
			"commit":  obs.Commit,
			"time":    time.Now().UTC(),
		})
	})

	// Everything else is proxied to one of the two upstreams.
	mux.HandleFunc("/", d.handleProxy)
	return mux
}

// handleProxy dispatches one inbound request to the WebSocket relay when
// the headers announce an upgrade, to the streaming relay for SSE, and to
// the buffered relay otherwise.
func (d *Deps) handleProxy(w http.ResponseWriter, r *http.Request) {
	if isWebSocketRequest(r) {
		d.Proxy.proxyWebSocket(w, r)
		return
	}
	if wantsEventStream(r) {
		d.Proxy.forwardStreaming(w, r)
		return
	}
	d.Proxy.forward(w, r)
}

func isWebSocketRequest(r *http.Request) bool {
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return true
	}
	// Some clients send the key/version headers as the first upgrade signal.
	if r.Header.Get("Sec-WebSocket-Key") != "" || r.Header.Get("Sec-WebSocket-Version") != "" {
		return true
	}
	return false
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}
