package httpapi

import (
	"fmt"
	"strings"
)

// Fixed column widths for request log lines so concurrent output stays
// aligned. Method fits the longest verb (OPTIONS), target fits "api"/"ui".
const (
	methodWidth = 7
	pathWidth   = 50
	targetWidth = 3
)

// requestLine renders one request as a single aligned line:
//
//	GET     /api/users                  -> api | 200 |     16ms
func requestLine(method, path, target string, status int, durationMs int64) string {
	return fmt.Sprintf("%s %s -> %s | %3d | %10dms",
		formatMethodFixed(method),
		formatPathFixed(path),
		formatTargetFixed(target),
		status,
		durationMs,
	)
}

func formatMethodFixed(method string) string {
	return fmt.Sprintf("%-*s", methodWidth, method)
}

// formatPathFixed pads or truncates path to exactly pathWidth columns,
// marking truncation with a trailing ellipsis.
func formatPathFixed(path string) string {
	if len(path) > pathWidth {
		return path[:pathWidth-3] + "..."
	}
	return fmt.Sprintf("%-*s", pathWidth, path)
}

func formatTargetFixed(target string) string {
	if len(target) > targetWidth {
		target = target[:targetWidth]
	}
	return fmt.Sprintf("%-*s", targetWidth, target)
}

// isFilePath reports whether path looks like a static-asset request: the
// last segment carries a short alphanumeric extension (/assets/logo.png,
// /node_modules/react/index.js). Route-like paths (/api/users, /@vite/client)
// do not qualify.
func isFilePath(path string) bool {
	trimmed := strings.TrimRight(path, "/")
	last := trimmed
	if i := strings.LastIndexByte(trimmed, '/'); i >= 0 {
		last = trimmed[i+1:]
	}
	dot := strings.LastIndexByte(last, '.')
	if dot < 0 {
		return false
	}
	ext := last[dot+1:]
	if ext == "" || len(ext) > 10 {
		return false
	}
	for i := 0; i < len(ext); i++ {
		c := ext[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// logRequest emits the summary line for a completed exchange. UI static
// asset requests are suppressed to keep dev output readable.
func (p *Proxy) logRequest(method, path, target string, status int, durationMs int64) {
	if target == targetUI && isFilePath(path) {
		return
	}
	p.logger.Info().Msg(requestLine(method, path, target, status, durationMs))
}

// logRequestError emits the same line plus the error text at warn level.
// Errors are logged even for static-asset paths.
func (p *Proxy) logRequestError(method, path, target string, status int, durationMs int64, errText string) {
	p.logger.Warn().Msg(requestLine(method, path, target, status, durationMs) + " | " + errText)
}
