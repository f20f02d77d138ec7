package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cfgpkg "github.com/alexxx-db/apx/internal/infrastructure/config"
	httpapi "github.com/alexxx-db/apx/internal/infrastructure/httpapi"
	obs "github.com/alexxx-db/apx/internal/infrastructure/observability"
)

func main() {
	cfg := cfgpkg.FromEnv()

	logger := obs.NewLogger(cfg.LogLevel)
	logger.Info().
		Str("addr", cfg.Addr).
		Str("frontend", cfg.FrontendURL).
		Str("backend", cfg.BackendURL).
		Str("apiPrefix", cfg.APIPrefix).
		Msg("starting apx dev proxy")

	metrics := obs.NewMetrics()
	proxy := httpapi.NewProxy(cfg, logger, metrics)
	deps := &httpapi.Deps{Cfg: cfg, Logger: logger, Metrics: metrics, Proxy: proxy}

	// No Read/WriteTimeout on the server: SSE responses and WebSocket
	// sessions stay open indefinitely.
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewRouterWithDeps(deps),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	// Drain proxy work first so open WebSocket sessions get close frames,
	// then stop the listener.
	proxy.Shutdown(cfg.ShutdownTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	logger.Info().Msg("apx dev proxy stopped")
}
