package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Evoker-Industries/Janus/pkg/stats"
	"github.com/Evoker-Industries/Janus/pkg/telemetry/metrics"
)

// AccessLogConfig wires the observability sinks fed by the access log
// middleware.
type AccessLogConfig struct {
	// Logger receives one structured entry per request when Enabled.
	Logger *slog.Logger

	// Enabled controls emission of per-request log entries. Counters and
	// records are updated regardless.
	Enabled bool

	// Tracker receives in-memory request counters.
	Tracker *stats.Tracker

	// Store persists access records. Nil disables persistence.
	Store *stats.Store

	// Metrics receives request metrics. Nil disables them.
	Metrics *metrics.Collector
}

// AccessLog observes every request: it feeds the stats tracker, the metrics
// collector, the optional access-record store, and emits the access log
// line. It also plants the RouteInfo record the router fills in during
// dispatch.
func AccessLog(cfg AccessLogConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)
			ctx, info := WithRouteInfo(r.Context())

			next.ServeHTTP(rec, r.WithContext(ctx))

			duration := time.Since(start)
			if cfg.Tracker != nil {
				cfg.Tracker.RecordRequest(rec.status, rec.bytes, info.Upstream)
			}
			if cfg.Metrics != nil {
				kind := info.Kind
				if kind == "" {
					kind = "unmatched"
				}
				cfg.Metrics.RecordRequest(kind, stats.StatusClass(rec.status), duration)
			}
			if cfg.Store != nil {
				record := stats.Record{
					Timestamp:  start,
					Method:     r.Method,
					Path:       r.URL.Path,
					Status:     rec.status,
					Upstream:   info.Upstream,
					Target:     info.Target,
					ClientAddr: clientAddr(r),
					DurationMs: duration.Milliseconds(),
					BytesSent:  rec.bytes,
				}
				// The request context is done once the handler returns,
				// so the insert runs against the background context.
				if err := cfg.Store.Insert(context.Background(), record); err != nil {
					cfg.Logger.Warn("access record insert failed",
						slog.String("error", err.Error()))
				}
			}
			if cfg.Enabled {
				cfg.Logger.Info("request",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", rec.status),
					slog.Int64("bytes", rec.bytes),
					slog.Duration("duration", duration),
					slog.String("client", clientAddr(r)),
					slog.String("upstream", info.Upstream),
					slog.String("target", info.Target),
					slog.String("request_id", GetRequestID(r.Context())))
			}
		})
	}
}

// clientAddr returns the client IP without the ephemeral port.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
