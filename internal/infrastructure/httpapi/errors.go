package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
)

// upstreamErrKind classifies outbound failures once so every relay maps an
// error to a response in exactly one place.
type upstreamErrKind int

const (
	errKindOther upstreamErrKind = iota
	errKindUnreachable
	errKindTimeout
)

func classifyUpstreamError(err error) upstreamErrKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return errKindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return errKindTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return errKindUnreachable
	}
	var oe *net.OpError
	if errors.As(err, &oe) && oe.Op == "dial" {
		return errKindUnreachable
	}
	return errKindOther
}

// upstreamErrorResponse maps a classified upstream failure to the status
// code and plain-text body the caller sees. target is "api" or "ui".
func upstreamErrorResponse(kind upstreamErrKind, target string, err error) (status int, body string) {
	switch kind {
	case errKindUnreachable:
		return http.StatusBadGateway, "Failed to connect to " + target + " server"
	case errKindTimeout:
		return http.StatusGatewayTimeout, "Request timed out"
	default:
		return http.StatusInternalServerError, "Proxy error: " + err.Error()
	}
}

// upstreamErrorLogText is the error column appended to the request log line.
func upstreamErrorLogText(kind upstreamErrKind, target string, err error) string {
	switch kind {
	case errKindUnreachable:
		return "Connection failed to " + target
	case errKindTimeout:
		return "Request timed out"
	default:
		return err.Error()
	}
}

// errStage labels proxy_errors_total by failure class.
func errStage(kind upstreamErrKind) string {
	switch kind {
	case errKindUnreachable:
		return "connect"
	case errKindTimeout:
		return "timeout"
	default:
		return "other"
	}
}

func writePlainError(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
