package middleware

import "context"

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// RequestIDKey stores the unique request ID.
	RequestIDKey contextKey = "request_id"

	// RouteInfoKey stores the mutable per-request routing record.
	RouteInfoKey contextKey = "route_info"
)

// RouteInfo is filled in by the router as it dispatches a request. It lives
// behind a pointer in the context so middleware installed outside the
// router can read what the router decided after the handler returns.
type RouteInfo struct {
	// Kind is "proxy" or "static", empty when nothing matched.
	Kind string

	// Upstream is the upstream name for proxied requests.
	Upstream string

	// Target is the backend address the request was dispatched to.
	Target string
}

// WithRouteInfo returns a context carrying a fresh RouteInfo record.
func WithRouteInfo(ctx context.Context) (context.Context, *RouteInfo) {
	info := &RouteInfo{}
	return context.WithValue(ctx, RouteInfoKey, info), info
}

// RouteInfoFrom extracts the RouteInfo record, or nil when absent.
func RouteInfoFrom(ctx context.Context) *RouteInfo {
	info, _ := ctx.Value(RouteInfoKey).(*RouteInfo)
	return info
}

// GetRequestID extracts the request ID from the context. Returns empty
// string if not found.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
