package proxy

import (
	"net/http"
	"strings"
	"time"

	"github.com/Evoker-Industries/Janus/pkg/config"
)

// route is one compiled proxy route. Routes are matched per request in
// declaration order; the first path match wins, even when its method set
// rejects the request.
type route struct {
	cfg     config.RouteConfig
	methods map[string]struct{}
	timeout time.Duration
}

func compileRoute(cfg config.RouteConfig) *route {
	rt := &route{cfg: cfg, timeout: cfg.Timeout()}
	if len(cfg.Methods) > 0 {
		rt.methods = make(map[string]struct{}, len(cfg.Methods))
		for _, m := range cfg.Methods {
			rt.methods[strings.ToUpper(m)] = struct{}{}
		}
	}
	return rt
}

// matchPath reports whether the request path matches the route pattern.
// For wildcard patterns the returned suffix is the part the wildcard
// consumed; exact patterns always return an empty suffix.
func (rt *route) matchPath(path string) (suffix string, ok bool) {
	pattern := rt.cfg.Path
	if !strings.HasSuffix(pattern, "*") {
		if path == pattern {
			return "", true
		}
		return "", false
	}

	base := strings.TrimSuffix(pattern, "*")
	if strings.HasPrefix(path, base) {
		return path[len(base):], true
	}
	// "/api/*" also matches a bare "/api".
	if base != "/" && path == strings.TrimSuffix(base, "/") {
		return "", true
	}
	return "", false
}

// allows reports whether the method passes the route's method set. An
// empty set allows every method.
func (rt *route) allows(method string) bool {
	if rt.methods == nil {
		return true
	}
	_, ok := rt.methods[strings.ToUpper(method)]
	return ok
}

// allowedMethods returns the configured method names for the Allow header.
func (rt *route) allowedMethods() string {
	return strings.Join(rt.cfg.Methods, ", ")
}

// forwardPath builds the upstream path. Without a rewrite the original
// path passes through untouched; with one, the matched pattern prefix is
// replaced by the rewrite value.
func (rt *route) forwardPath(originalPath, suffix string) string {
	if rt.cfg.Rewrite == "" {
		return originalPath
	}
	if suffix == "" {
		return rt.cfg.Rewrite
	}
	return strings.TrimSuffix(rt.cfg.Rewrite, "/") + "/" + strings.TrimPrefix(suffix, "/")
}

// expandHeaders renders the route's header templates against one request.
func (rt *route) expandHeaders(r *http.Request, clientIP, requestID string) map[string]string {
	if len(rt.cfg.Headers) == 0 {
		return nil
	}
	replacer := strings.NewReplacer(
		"$remote_addr", clientIP,
		"$request_id", requestID,
		"$host", r.Host,
	)
	out := make(map[string]string, len(rt.cfg.Headers))
	for name, tmpl := range rt.cfg.Headers {
		out[name] = replacer.Replace(tmpl)
	}
	return out
}
