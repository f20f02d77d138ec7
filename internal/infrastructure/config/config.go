package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr     string
	LogLevel string

	// Upstreams. Trailing slashes are stripped once here so URL building is
	// plain concatenation everywhere else.
	FrontendURL string
	BackendURL  string
	APIPrefix   string

	// Timeout for the outbound WebSocket handshake.
	WSOpenTimeout time.Duration
	// Outbound HTTP timeouts: a short connect timeout and a longer limit on
	// waiting for upstream response headers.
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	// How long shutdown waits for in-flight WebSocket sessions to drain.
	ShutdownTimeout time.Duration

	// Bounds for the pooled outbound HTTP client.
	MaxConnections     int
	MaxIdleConnections int
}

func FromEnv() Config {
	cfg := Config{
		Addr:        getEnv("ADDR", ":9000"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		FrontendURL: strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:5173"), "/"),
		BackendURL:  strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:8000"), "/"),
		APIPrefix:   strings.TrimRight(getEnv("API_PREFIX", "/api"), "/"),
	}
	cfg.WSOpenTimeout = getEnvSeconds("WS_OPEN_TIMEOUT_SECONDS", 4*time.Second)
	cfg.ConnectTimeout = getEnvSeconds("CONNECT_TIMEOUT_SECONDS", 10*time.Second)
	cfg.RequestTimeout = getEnvSeconds("REQUEST_TIMEOUT_SECONDS", 60*time.Second)
	cfg.ShutdownTimeout = getEnvSeconds("SHUTDOWN_TIMEOUT_SECONDS", 5*time.Second)
	cfg.MaxConnections = getEnvInt("MAX_CONNECTIONS", 100)
	cfg.MaxIdleConnections = getEnvInt("MAX_KEEPALIVE_CONNECTIONS", 20)
	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// getEnvSeconds reads a duration expressed in seconds; fractional values are
// accepted (e.g. "0.5").
func getEnvSeconds(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return time.Duration(f * float64(time.Second))
		}
	}
	return def
}
