package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Evoker-Industries/Janus/pkg/config"
	"github.com/Evoker-Industries/Janus/pkg/stats"
	"github.com/Evoker-Industries/Janus/pkg/upstream"
)

func testOptions(t *testing.T, backend string) Options {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Upstreams = map[string]config.UpstreamConfig{
		"api": {
			LoadBalancing: "round_robin",
			Servers:       []config.BackendServer{{Address: backend, Weight: 1}},
		},
	}
	cfg.Routes = []config.RouteConfig{
		{Path: "/api/*", Methods: []string{"GET"}, Upstream: "api"},
	}
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := config.NewStore(cfg)
	return Options{
		Config:  cfg.Server,
		Store:   store,
		Pool:    upstream.NewPool(store.Get(), logger),
		Tracker: stats.NewTracker(),
		Logger:  logger,
	}
}

func TestHandlerProxiesThroughChain(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	}))
	defer backend.Close()

	opts := testOptions(t, strings.TrimPrefix(backend.URL, "http://"))
	srv := NewServer(opts)
	handler := srv.buildHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "pong" {
		t.Errorf("body = %q, want pong", got)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing from response")
	}
	if got := opts.Tracker.Snapshot().TotalRequests; got != 1 {
		t.Errorf("tracked requests = %d, want 1", got)
	}
}

func TestHandlerReportsUnreachableUpstream(t *testing.T) {
	// Port 1 is never listening, so dispatch fails on connect.
	opts := testOptions(t, "127.0.0.1:1")
	srv := NewServer(opts)

	handler := srv.buildHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestWorkersCapConcurrentRequests(t *testing.T) {
	var inFlight, peak atomic.Int64
	release := make(chan struct{})
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
	}))
	defer backend.Close()

	opts := testOptions(t, strings.TrimPrefix(backend.URL, "http://"))
	opts.Config.Workers = 2
	srv := NewServer(opts)
	handler := srv.buildHandler()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/slow", nil))
		}()
	}

	// Give all four goroutines time to contend for the two slots.
	time.Sleep(200 * time.Millisecond)
	close(release)
	wg.Wait()

	if p := peak.Load(); p > 2 {
		t.Errorf("peak concurrent backend requests = %d, want at most 2", p)
	}
}

func TestRateLimitedChainRejectsBurst(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	opts := testOptions(t, strings.TrimPrefix(backend.URL, "http://"))
	opts.Config.RateLimit = config.RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 1,
		Burst:             1,
	}
	srv := NewServer(opts)
	handler := srv.buildHandler()
	defer srv.limiter.Stop()

	statuses := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)
	}

	if statuses[0] != http.StatusOK {
		t.Errorf("first request status = %d, want 200", statuses[0])
	}
	if statuses[1] != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", statuses[1])
	}
}

func TestStopUnblocksStart(t *testing.T) {
	opts := testOptions(t, "127.0.0.1:1")
	opts.Config.BindAddress = "127.0.0.1"
	opts.Config.Port = 0

	srv := NewServer(opts)
	done := make(chan error, 1)
	go func() { done <- srv.Start(context.Background()) }()

	// Give the listener a moment to come up before asking it to stop.
	time.Sleep(50 * time.Millisecond)
	srv.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after Stop()")
	}
}
