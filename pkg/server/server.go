// Package server runs the main proxy listener: the router wrapped in the
// request middleware chain, with signal-driven graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/Evoker-Industries/Janus/pkg/config"
	"github.com/Evoker-Industries/Janus/pkg/proxy"
	"github.com/Evoker-Industries/Janus/pkg/proxy/middleware"
	"github.com/Evoker-Industries/Janus/pkg/stats"
	"github.com/Evoker-Industries/Janus/pkg/telemetry/metrics"
	"github.com/Evoker-Industries/Janus/pkg/upstream"
)

// Options wires the proxy server's collaborators. Config holds the startup
// listener settings; listener address changes require a restart, everything
// routed through the config store takes effect on reload.
type Options struct {
	Config  config.ServerConfig
	Store   *config.Store
	Pool    *upstream.Pool
	Tracker *stats.Tracker
	Metrics *metrics.Collector
	Logger  *slog.Logger

	// Records persists per-request access records. Nil disables
	// persistence.
	Records *stats.Store
}

// Server is the main proxy HTTP server.
type Server struct {
	opts       Options
	httpServer *http.Server
	limiter    *middleware.RateLimiter

	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.Mutex
	running      bool
}

// NewServer creates the proxy server. It does not listen until Start.
func NewServer(opts Options) *Server {
	return &Server{
		opts:         opts,
		shutdownChan: make(chan struct{}),
	}
}

// Start starts the listener and blocks until the context is cancelled, a
// termination signal arrives, or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:              s.opts.Config.Addr(),
		Handler:           s.buildHandler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.opts.Logger.Info("proxy server listening",
			slog.String("address", s.opts.Config.Addr()))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.opts.Logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.opts.Logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		return s.Shutdown(context.Background())
	}
}

// Handler returns the fully assembled middleware chain without starting a
// listener. Used by integration tests driving the server through httptest.
func (s *Server) Handler() http.Handler {
	return s.buildHandler()
}

// Stop requests shutdown from another goroutine. Start returns once the
// graceful drain completes.
func (s *Server) Stop() {
	s.shutdownOnce.Do(func() { close(s.shutdownChan) })
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	timeout := s.opts.Config.ShutdownTimeout()
	s.opts.Logger.Info("initiating graceful shutdown", slog.Duration("timeout", timeout))

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var err error
	if s.httpServer != nil {
		if shutdownErr := s.httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			s.opts.Logger.Error("error during server shutdown",
				slog.String("error", shutdownErr.Error()))
			err = fmt.Errorf("server shutdown: %w", shutdownErr)
		}
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}

	s.opts.Logger.Info("proxy server stopped")
	return err
}

// buildHandler assembles the middleware chain around the router. Recovery
// sits outermost so a panic anywhere below still yields a 500. The access
// log sits innermost so every counter and record reflects the final
// response status.
func (s *Server) buildHandler() http.Handler {
	router := proxy.NewRouter(proxy.RouterConfig{
		Store:   s.opts.Store,
		Pool:    s.opts.Pool,
		Metrics: s.opts.Metrics,
		Tracker: s.opts.Tracker,
		Logger:  s.opts.Logger,
	})

	var handler http.Handler = router

	handler = middleware.AccessLog(middleware.AccessLogConfig{
		Logger:  s.opts.Logger,
		Enabled: s.opts.Config.AccessLogEnabled(),
		Tracker: s.opts.Tracker,
		Store:   s.opts.Records,
		Metrics: s.opts.Metrics,
	})(handler)

	if s.opts.Config.RateLimit.Enabled {
		s.limiter = middleware.NewRateLimiter(s.opts.Config.RateLimit)
		handler = s.limiter.Middleware(handler)
	}

	workers := s.opts.Config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	handler = limitConcurrency(handler, workers)

	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(s.opts.Logger)(handler)

	return handler
}

// limitConcurrency caps the number of requests serviced at once, per the
// workers setting. An acquire blocks until a slot frees or the client
// goes away.
func limitConcurrency(next http.Handler, n int) http.Handler {
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}:
		case <-r.Context().Done():
			return
		}
		defer func() { <-sem }()
		next.ServeHTTP(w, r)
	})
}
