package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeWriteTimeout = 2 * time.Second

// wsCloseState records the close code and reason reported by whichever pump
// detects termination first. Later detections are ignored.
type wsCloseState struct {
	mu     sync.Mutex
	set    bool
	code   int
	reason string
}

func (s *wsCloseState) record(code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		return
	}
	s.set = true
	s.code = code
	s.reason = reason
}

func (s *wsCloseState) get() (code int, reason string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code, s.reason, s.set
}

// closeFrame returns the code/reason to echo in the final close frame,
// falling back to a normal close when nothing was captured.
func (s *wsCloseState) closeFrame() (int, string) {
	if code, reason, ok := s.get(); ok {
		return code, reason
	}
	return websocket.CloseNormalClosure, ""
}

// proxyWebSocket relays one WebSocket session to the resolved upstream.
// The inbound upgrade is accepted before the upstream dial on purpose: the
// client completes its handshake promptly even when the upstream is slow,
// instead of watching its connect attempt hang.
func (p *Proxy) proxyWebSocket(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	base, target := p.resolve(path)

	upgrader := websocket.Upgrader{
		CheckOrigin:  func(r *http.Request) bool { return true },
		Subprotocols: []string{r.Header.Get("Sec-WebSocket-Protocol")},
	}

	if !p.accepting.Load() {
		// Complete the handshake so the client receives a proper close
		// frame rather than a failed connect.
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		p.logger.Info().Msgf("WS %s -> %s | rejected (shutting down)", path, target)
		p.metrics.ProxyErrorsTotal.WithLabelValues("gate").Inc()
		closeConn(conn, websocket.CloseGoingAway, "Server is shutting down")
		return
	}

	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade failure already wrote the HTTP error response.
		p.logger.Warn().Msgf("WS %s -> %s | upgrade failed: %v", path, target, err)
		p.metrics.ProxyErrorsTotal.WithLabelValues("ws_upgrade").Inc()
		return
	}

	targetURL := wsScheme(base) + path
	if r.URL.RawQuery != "" {
		targetURL += "?" + r.URL.RawQuery
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: p.cfg.WSOpenTimeout,
		NetDialContext:   (&net.Dialer{Timeout: p.cfg.WSOpenTimeout}).DialContext,
	}
	upstreamConn, resp, err := dialer.Dial(targetURL, nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		p.logWSDialFailure(path, target, targetURL, err)
		p.metrics.ProxyErrorsTotal.WithLabelValues("ws_dial").Inc()
		closeConn(clientConn, websocket.CloseInternalServerErr, "Failed to connect to "+target+" server")
		return
	}

	if target == targetUI {
		p.logger.Info().Msgf("WS %s -> %s | connection opened", path, target)
	}

	p.runSession(clientConn, upstreamConn, path, target)
}

// runSession registers the session, runs both pumps until either finishes
// or shutdown cancels the session, then tears everything down. Teardown
// always runs: deregister, close upstream, close inbound, log the closure
// (UI sessions only).
func (p *Proxy) runSession(clientConn, upstreamConn *websocket.Conn, path, target string) {
	ctx, cancel := context.WithCancel(context.Background())
	sess := &wsSession{cancel: cancel, done: make(chan struct{})}
	p.sessions.add(sess)
	p.metrics.ActiveWebSockets.Inc()

	state := &wsCloseState{}

	defer func() {
		p.sessions.remove(sess)
		p.metrics.ActiveWebSockets.Dec()
		_ = upstreamConn.Close()
		_ = clientConn.Close()
		p.logWSClosed(path, target, state)
		cancel()
		close(sess.done)
	}()

	clientDone := make(chan struct{})
	upstreamDone := make(chan struct{})

	go func() {
		defer close(clientDone)
		p.pump(clientConn, upstreamConn, state, "client_to_upstream")
	}()
	go func() {
		defer close(upstreamDone)
		p.pump(upstreamConn, clientConn, state, "upstream_to_client")
	}()

	// First finished pump ends the session. Closing both connections is
	// what unblocks the losing pump; its exit is awaited below so cleanup
	// never races a live reader.
	select {
	case <-clientDone:
	case <-upstreamDone:
	case <-ctx.Done():
		state.record(websocket.CloseGoingAway, "Server is shutting down")
	}

	code, reason := state.closeFrame()
	deadline := time.Now().Add(closeWriteTimeout)
	_ = upstreamConn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = clientConn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = upstreamConn.Close()
	_ = clientConn.Close()

	<-clientDone
	<-upstreamDone
}

// pump forwards frames from src to dst until closure or error. Frames keep
// their type and bytes and arrive in read order. Errors end only this pump;
// a close frame's code and reason are recorded for the session.
func (p *Proxy) pump(src, dst *websocket.Conn, state *wsCloseState, direction string) {
	for {
		mt, data, err := src.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				state.record(ce.Code, ce.Text)
			}
			return
		}
		if err := dst.WriteMessage(mt, data); err != nil {
			return
		}
		p.metrics.WSFramesTotal.WithLabelValues(direction).Inc()
	}
}

func (p *Proxy) logWSDialFailure(path, target, targetURL string, err error) {
	switch classifyUpstreamError(err) {
	case errKindTimeout:
		p.logger.Warn().Msgf("WS %s -> %s | connection timeout after %s to %s", path, target, p.cfg.WSOpenTimeout, targetURL)
	case errKindUnreachable:
		p.logger.Warn().Msgf("WS %s -> %s | connection refused to %s (target server not listening?)", path, target, targetURL)
	default:
		p.logger.Warn().Msgf("WS %s -> %s | error (%T): %v | target=%s", path, target, err, err, targetURL)
	}
}

// logWSClosed reports session end for UI-bound sessions only; API sessions
// stay quiet outside error paths to keep dev output readable.
func (p *Proxy) logWSClosed(path, target string, state *wsCloseState) {
	if target != targetUI {
		return
	}
	code, reason, ok := state.get()
	switch {
	case !ok:
		p.logger.Info().Msgf("WS %s -> %s | connection closed", path, target)
	case code == websocket.CloseNormalClosure:
		p.logger.Info().Msgf("WS %s -> %s | connection closed successfully", path, target)
	default:
		suffix := ""
		if reason != "" {
			suffix = " (" + reason + ")"
		}
		p.logger.Info().Msgf("WS %s -> %s | connection closed with code %d%s", path, target, code, suffix)
	}
}

// closeConn sends a close frame with the given code then closes the socket.
func closeConn(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(closeWriteTimeout))
	_ = conn.Close()
}

// wsScheme rewrites an http(s) base URL to the matching ws(s) scheme.
func wsScheme(base string) string {
	if strings.HasPrefix(base, "https://") {
		return "wss://" + strings.TrimPrefix(base, "https://")
	}
	return "ws://" + strings.TrimPrefix(base, "http://")
}
