package proxy

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Evoker-Industries/Janus/pkg/config"
	"github.com/Evoker-Industries/Janus/pkg/stats"
	"github.com/Evoker-Industries/Janus/pkg/telemetry/metrics"
	"github.com/Evoker-Industries/Janus/pkg/upstream"
)

// Router dispatches requests to static mounts and proxy routes. Each
// request is matched against one configuration snapshot, so a reload that
// lands mid-request never changes how that request is routed.
type Router struct {
	store     *config.Store
	pool      *upstream.Pool
	metrics   *metrics.Collector
	tracker   *stats.Tracker
	logger    *slog.Logger
	transport http.RoundTripper

	// rebuildMu serializes table rebuilds after a reload; readers go
	// through the atomic pointer only.
	rebuildMu sync.Mutex
	table     atomic.Pointer[routeTable]
}

// routeTable is the routing state compiled from one snapshot.
type routeTable struct {
	generation uint64
	statics    []*staticMount
	routes     []*route
}

// RouterConfig wires the router's collaborators.
type RouterConfig struct {
	Store   *config.Store
	Pool    *upstream.Pool
	Metrics *metrics.Collector
	Tracker *stats.Tracker
	Logger  *slog.Logger

	// Transport overrides the upstream transport, used in tests.
	Transport http.RoundTripper
}

// NewRouter creates a router over the current configuration snapshot.
func NewRouter(cfg RouterConfig) *Router {
	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        256,
			MaxIdleConnsPerHost: 32,
			IdleConnTimeout:     90 * time.Second,
		}
	}
	r := &Router{
		store:     cfg.Store,
		pool:      cfg.Pool,
		metrics:   cfg.Metrics,
		tracker:   cfg.Tracker,
		logger:    cfg.Logger,
		transport: transport,
	}
	r.table.Store(compileTable(cfg.Store.Get()))
	return r
}

func compileTable(snap *config.Snapshot) *routeTable {
	table := &routeTable{generation: snap.Generation}
	for _, sc := range snap.Config.StaticFiles {
		table.statics = append(table.statics, compileStatic(sc))
	}
	for _, rc := range snap.Config.Routes {
		table.routes = append(table.routes, compileRoute(rc))
	}
	return table
}

// tableFor returns the routing table compiled from the given snapshot,
// rebuilding it when a new generation has been published.
func (rt *Router) tableFor(snap *config.Snapshot) *routeTable {
	table := rt.table.Load()
	if table.generation == snap.Generation {
		return table
	}

	rt.rebuildMu.Lock()
	defer rt.rebuildMu.Unlock()
	if table = rt.table.Load(); table.generation == snap.Generation {
		return table
	}
	table = compileTable(snap)
	rt.table.Store(table)
	rt.logger.Debug("routing table rebuilt", slog.Uint64("generation", table.generation))
	return table
}

// ServeHTTP implements http.Handler. Static mounts are checked first, then
// proxy routes, both in declaration order. The first path match decides the
// request: a matching route with a rejecting method set yields 405 rather
// than falling through to later routes.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap := rt.store.Get()
	table := rt.tableFor(snap)

	for _, mount := range table.statics {
		rel, ok := mount.match(r.URL.Path)
		if !ok {
			continue
		}
		rt.setRouteInfo(r, "static", "", "")
		mount.serve(w, r, rel)
		return
	}

	for _, route := range table.routes {
		suffix, ok := route.matchPath(r.URL.Path)
		if !ok {
			continue
		}
		if !route.allows(r.Method) {
			if allow := route.allowedMethods(); allow != "" {
				w.Header().Set("Allow", allow)
			}
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rt.proxyRoute(w, r, route, suffix)
		return
	}

	http.NotFound(w, r)
}
