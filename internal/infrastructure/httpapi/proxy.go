package httpapi

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	http2 "golang.org/x/net/http2"

	"github.com/alexxx-db/apx/internal/infrastructure/config"
	obs "github.com/alexxx-db/apx/internal/infrastructure/observability"
)

// Upstream names used in log lines, error bodies and metric labels.
const (
	targetAPI = "api"
	targetUI  = "ui"
)

// Header added to UI-bound requests so the frontend dev server can verify
// that traffic arrived through the dev proxy.
const devProxyHeader = "x-apx-dev-proxy"

// Proxy relays HTTP and WebSocket traffic to one of two upstreams and owns
// the shared state needed for graceful shutdown: the accepting gate, the
// registry of open WebSocket sessions and the pooled outbound HTTP client.
type Proxy struct {
	cfg     config.Config
	logger  *zerolog.Logger
	metrics *obs.Metrics

	// One-way gate: true at construction, flipped to false by Shutdown and
	// never back. Checked by every relay entry point before any work.
	accepting atomic.Bool

	sessions *sessionRegistry

	clientMu     sync.Mutex
	client       *http.Client
	clientClosed bool
}

func NewProxy(cfg config.Config, logger *zerolog.Logger, metrics *obs.Metrics) *Proxy {
	p := &Proxy{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		sessions: newSessionRegistry(),
	}
	p.accepting.Store(true)
	return p
}

// Accepting reports whether the proxy still admits new work.
func (p *Proxy) Accepting() bool { return p.accepting.Load() }

// ActiveWebSocketCount returns the number of currently open WebSocket
// sessions.
func (p *Proxy) ActiveWebSocketCount() int { return p.sessions.size() }

// isAPIRoute reports whether path is routed to the backend. The prefix must
// match up to a path boundary: with prefix "/api", "/api" and "/api/users"
// are API routes but "/apiabc" is not.
func (p *Proxy) isAPIRoute(path string) bool {
	prefix := p.cfg.APIPrefix
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	rest := path[len(prefix):]
	return rest == "" || strings.HasPrefix(rest, "/")
}

// resolve maps a request path to an upstream base URL and its short name.
// Pure and infallible.
func (p *Proxy) resolve(path string) (base string, target string) {
	if p.isAPIRoute(path) {
		return p.cfg.BackendURL, targetAPI
	}
	return p.cfg.FrontendURL, targetUI
}

// httpClient returns the pooled outbound client, creating it lazily and
// recreating it if a previous one was closed.
func (p *Proxy) httpClient() *http.Client {
	p.clientMu.Lock()
	defer p.clientMu.Unlock()
	if p.client == nil || p.clientClosed {
		p.client = &http.Client{
			Transport: p.newTransport(),
			// Redirects are passed through to the caller, not followed.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
		p.clientClosed = false
	}
	return p.client
}

// newTransport centralizes outbound transport creation: bounded pool, short
// connect timeout, longer header timeout, no transparent compression so
// bodies pass through byte-identical.
func (p *Proxy) newTransport() *http.Transport {
	tr := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: p.cfg.ConnectTimeout,
		}).DialContext,
		MaxConnsPerHost:       p.cfg.MaxConnections,
		MaxIdleConns:          p.cfg.MaxConnections,
		MaxIdleConnsPerHost:   p.cfg.MaxIdleConnections,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: p.cfg.RequestTimeout,
		DisableCompression:    true,
	}
	// Enable HTTP/2 for outbound HTTPS where possible. Safe to ignore error
	// and fall back to HTTP/1.1.
	_ = http2.ConfigureTransport(tr)
	return tr
}

// closeHTTPClient releases pooled connections. Safe to call repeatedly; only
// the first call after client creation does work.
func (p *Proxy) closeHTTPClient() {
	p.clientMu.Lock()
	defer p.clientMu.Unlock()
	if p.client != nil && !p.clientClosed {
		p.client.CloseIdleConnections()
		p.clientClosed = true
	}
}

// Shutdown stops admission of new work, drains open WebSocket sessions for
// up to timeout and releases the pooled HTTP client. Sessions that do not
// finish in time are abandoned with a warning. Idempotent.
func (p *Proxy) Shutdown(timeout time.Duration) {
	p.logger.Info().Msg("Shutting down proxy...")
	p.accepting.Store(false)

	sessions := p.sessions.snapshot()
	if len(sessions) > 0 {
		p.logger.Info().Msgf("Closing %d active WebSocket connection(s)...", len(sessions))
		for _, s := range sessions {
			s.cancel()
		}
		if !waitForSessions(sessions, timeout) {
			p.logger.Warn().Msg("Timeout waiting for WebSocket connections to close")
		}
	}

	p.closeHTTPClient()
	p.logger.Info().Msg("Proxy shutdown complete")
}

// waitForSessions blocks until every session has finished or the timeout
// elapses, reporting whether all finished in time.
func waitForSessions(sessions []*wsSession, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for _, s := range sessions {
		select {
		case <-s.done:
		case <-timer.C:
			return false
		}
	}
	return true
}
