package httpapi

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Hop-by-hop headers are meaningful for a single transport hop only and are
// never forwarded in either direction.
var hopByHopHeaders = map[string]struct{}{
	"connection":          {},
	"keep-alive":          {},
	"proxy-authenticate":  {},
	"proxy-authorization": {},
	"te":                  {},
	"trailers":            {},
	"transfer-encoding":   {},
	"upgrade":             {},
}

func isHopByHop(name string) bool {
	_, ok := hopByHopHeaders[strings.ToLower(name)]
	return ok
}

func copyProxyHeaders(dst, src http.Header) {
	for k, vv := range src {
		if isHopByHop(k) {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// newUpstreamRequest builds the outbound request: base URL + original path
// and query, inbound headers minus Host and hop-by-hop, plus the standard
// forwarding headers. UI-bound requests additionally carry the dev proxy
// marker the frontend dev server checks.
func (p *Proxy) newUpstreamRequest(r *http.Request, base string) (*http.Request, error) {
	targetURL := base + r.URL.Path
	if r.URL.RawQuery != "" {
		targetURL += "?" + r.URL.RawQuery
	}

	out, err := http.NewRequestWithContext(r.Context(), r.Method, targetURL, r.Body)
	if err != nil {
		return nil, err
	}
	out.ContentLength = r.ContentLength

	for k, vv := range r.Header {
		if isHopByHop(k) || strings.EqualFold(k, "Host") {
			continue
		}
		for _, v := range vv {
			out.Header.Add(k, v)
		}
	}

	out.Header.Set("x-forwarded-for", clientHost(r.RemoteAddr))
	out.Header.Set("x-forwarded-proto", requestScheme(r))
	out.Header.Set("x-forwarded-host", r.Host)
	if !p.isAPIRoute(r.URL.Path) {
		out.Header.Set(devProxyHeader, "true")
	}
	return out, nil
}

// forward relays one HTTP exchange, buffering the upstream response before
// replying.
func (p *Proxy) forward(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	path := r.URL.Path
	_, target := p.resolve(path)

	if !p.accepting.Load() {
		p.rejectShuttingDown(w, r, target, start)
		return
	}

	resp, ok := p.sendUpstream(w, r, target, start)
	if !ok {
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.replyUpstreamError(w, r, target, err, start)
		return
	}

	copyProxyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)

	p.metrics.RequestsTotal.WithLabelValues(target, strconv.Itoa(resp.StatusCode)).Inc()
	p.logRequest(r.Method, path, target, resp.StatusCode, elapsedMs(start))
}

// forwardStreaming relays one HTTP exchange without buffering: the response
// starts as soon as upstream headers arrive and chunks are flushed through
// as they are read. Useful for SSE endpoints and large downloads. The
// upstream body is closed no matter how the copy ends.
func (p *Proxy) forwardStreaming(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	path := r.URL.Path
	_, target := p.resolve(path)

	if !p.accepting.Load() {
		p.rejectShuttingDown(w, r, target, start)
		return
	}

	resp, ok := p.sendUpstream(w, r, target, start)
	if !ok {
		return
	}
	defer resp.Body.Close()

	copyProxyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	// Log when headers arrive; streaming continues after.
	p.metrics.RequestsTotal.WithLabelValues(target, strconv.Itoa(resp.StatusCode)).Inc()
	p.logRequest(r.Method, path, target, resp.StatusCode, elapsedMs(start))

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				// Caller disconnected; deferred close releases upstream.
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if rerr != nil {
			return
		}
	}
}

// sendUpstream builds and issues the outbound request. On failure it writes
// the mapped error response and reports ok=false.
func (p *Proxy) sendUpstream(w http.ResponseWriter, r *http.Request, target string, start time.Time) (resp *http.Response, ok bool) {
	base, _ := p.resolve(r.URL.Path)
	out, err := p.newUpstreamRequest(r, base)
	if err != nil {
		p.replyUpstreamError(w, r, target, err, start)
		return nil, false
	}
	resp, err = p.httpClient().Do(out)
	if err != nil {
		p.replyUpstreamError(w, r, target, err, start)
		return nil, false
	}
	return resp, true
}

func (p *Proxy) rejectShuttingDown(w http.ResponseWriter, r *http.Request, target string, start time.Time) {
	p.metrics.ProxyErrorsTotal.WithLabelValues("gate").Inc()
	p.logRequestError(r.Method, r.URL.Path, target, http.StatusServiceUnavailable, elapsedMs(start), "Server shutting down")
	writePlainError(w, http.StatusServiceUnavailable, "Server is shutting down")
}

// replyUpstreamError converts an outbound failure into the caller-visible
// status and body, in one place for both relay operations.
func (p *Proxy) replyUpstreamError(w http.ResponseWriter, r *http.Request, target string, err error, start time.Time) {
	kind := classifyUpstreamError(err)
	status, body := upstreamErrorResponse(kind, target, err)
	p.metrics.ProxyErrorsTotal.WithLabelValues(errStage(kind)).Inc()
	p.logRequestError(r.Method, r.URL.Path, target, status, elapsedMs(start), upstreamErrorLogText(kind, target, err))
	writePlainError(w, status, body)
}

func elapsedMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

func clientHost(remote string) string {
	if i := strings.LastIndexByte(remote, ':'); i > 0 {
		return remote[:i]
	}
	return remote
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
