package config

import "time"

// Config is the root configuration structure for the Janus server.
// It contains the listener settings, the management control plane settings,
// the upstream pools, the ordered route table, and the static file mounts.
//
// A Config value is treated as immutable once published to the Store; callers
// must never mutate a snapshot they obtained from Store.Get.
type Config struct {
	// Server contains the HTTP listener configuration.
	Server ServerConfig `toml:"server" yaml:"server"`

	// Management contains the management control plane configuration.
	Management ManagementConfig `toml:"management" yaml:"management"`

	// Upstreams maps upstream names to their backend server groups.
	// Route entries refer to upstreams by these names.
	Upstreams map[string]UpstreamConfig `toml:"upstreams" yaml:"upstreams"`

	// Routes is the ordered route table. Matching is evaluated in
	// declaration order and the first match wins.
	Routes []RouteConfig `toml:"routes" yaml:"routes"`

	// StaticFiles is the ordered list of static file mounts. Mounts are
	// evaluated before proxy routes, in declaration order.
	StaticFiles []StaticFileConfig `toml:"static_files" yaml:"static_files"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `toml:"telemetry" yaml:"telemetry"`

	// Stats contains configuration for the access-record store.
	Stats StatsConfig `toml:"stats" yaml:"stats"`
}

// ServerConfig contains the HTTP listener configuration.
type ServerConfig struct {
	// BindAddress is the address the proxy listener binds to.
	// Default: "0.0.0.0"
	BindAddress string `toml:"bind_address" yaml:"bind_address"`

	// Port is the proxy listener port.
	// Default: 8080
	Port int `toml:"port" yaml:"port"`

	// Workers caps how many requests the proxy services concurrently.
	// 0 means auto-detect from the core count.
	// Default: 0
	Workers int `toml:"workers" yaml:"workers"`

	// AccessLog enables per-request access logging. Unset is treated as
	// true; set access_log = false to turn it off.
	// Default: true
	AccessLog *bool `toml:"access_log" yaml:"access_log"`

	// ShutdownTimeoutSeconds bounds graceful shutdown. Requests still in
	// flight after this many seconds are aborted.
	// Default: 30
	ShutdownTimeoutSeconds int `toml:"shutdown_timeout" yaml:"shutdown_timeout"`

	// RateLimit contains the optional per-client rate limiter settings.
	RateLimit RateLimitConfig `toml:"rate_limit" yaml:"rate_limit"`
}

// Addr returns the listener address in host:port form.
func (c ServerConfig) Addr() string {
	return joinHostPort(c.BindAddress, c.Port)
}

// ShutdownTimeout returns the graceful shutdown bound as a Duration.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// AccessLogEnabled reports whether access logging is on. An unset field
// counts as enabled.
func (c ServerConfig) AccessLogEnabled() bool {
	return c.AccessLog == nil || *c.AccessLog
}

// RateLimitConfig contains the optional per-client request rate limiter.
// When enabled, each client IP is granted RequestsPerSecond tokens per second
// with the configured burst; requests beyond that receive 429.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is applied.
	// Default: false
	Enabled bool `toml:"enabled" yaml:"enabled"`

	// RequestsPerSecond is the sustained per-client request rate.
	// Default: 100
	RequestsPerSecond float64 `toml:"requests_per_second" yaml:"requests_per_second"`

	// Burst is the per-client burst allowance.
	// Default: 200
	Burst int `toml:"burst" yaml:"burst"`
}

// ManagementConfig contains the management control plane configuration.
type ManagementConfig struct {
	// Enabled controls whether the management listener is started. Unset
	// is treated as true.
	// Default: true
	Enabled *bool `toml:"enabled" yaml:"enabled"`

	// Address is the management listener bind address.
	// Default: "127.0.0.1"
	Address string `toml:"address" yaml:"address"`

	// Port is the management listener port.
	// Default: 9090
	Port int `toml:"port" yaml:"port"`
}

// Addr returns the management listener address in host:port form.
func (c ManagementConfig) Addr() string {
	return joinHostPort(c.Address, c.Port)
}

// IsEnabled reports whether the management listener should be started. An
// unset field counts as enabled.
func (c ManagementConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// UpstreamConfig describes one named group of backend servers.
type UpstreamConfig struct {
	// Servers is the ordered list of backend servers. Declaration order is
	// significant: round_robin rotation and tie-breaking follow it.
	Servers []BackendServer `toml:"servers" yaml:"servers"`

	// LoadBalancing selects the target selection strategy.
	// Options: "round_robin", "least_connections", "random", "ip_hash"
	// Default: "round_robin"
	LoadBalancing string `toml:"load_balancing" yaml:"load_balancing"`

	// HealthCheck configures active health probing for this upstream.
	// When nil, no probing runs and targets stay in their initial state
	// until a management override changes them.
	HealthCheck *HealthCheckConfig `toml:"health_check" yaml:"health_check"`
}

// BackendServer is one backend address within an upstream.
type BackendServer struct {
	// Address is the backend address in host:port form.
	Address string `toml:"address" yaml:"address"`

	// Weight is the relative selection weight. Must be positive.
	// Default: 1
	Weight int `toml:"weight" yaml:"weight"`
}

// HealthCheckConfig configures periodic health probing for an upstream.
type HealthCheckConfig struct {
	// IntervalSeconds is the delay between consecutive probes.
	// Default: 30
	IntervalSeconds int `toml:"interval" yaml:"interval"`

	// TimeoutSeconds bounds a single probe request.
	// Default: 5
	TimeoutSeconds int `toml:"timeout" yaml:"timeout"`

	// Path is the request path probed on each backend.
	// Default: "/health"
	Path string `toml:"path" yaml:"path"`

	// HealthyThreshold is the number of consecutive probe successes
	// required to mark an Unhealthy target Healthy again. A single probe
	// failure always marks a target Unhealthy immediately.
	// Default: 1
	HealthyThreshold int `toml:"healthy_threshold" yaml:"healthy_threshold"`
}

// Interval returns the probe interval as a Duration.
func (c HealthCheckConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Timeout returns the probe timeout as a Duration.
func (c HealthCheckConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RouteConfig describes one proxy route.
type RouteConfig struct {
	// Path is the route pattern. A trailing "*" matches any suffix
	// (e.g. "/api/*"); without it the path must match exactly.
	Path string `toml:"path" yaml:"path"`

	// Methods is the set of allowed HTTP methods. Empty means all methods.
	Methods []string `toml:"methods" yaml:"methods"`

	// Upstream is the name of the upstream requests are forwarded to.
	// Must exist in Config.Upstreams.
	Upstream string `toml:"upstream" yaml:"upstream"`

	// Rewrite, when non-empty, replaces the matched pattern prefix before
	// forwarding. A request for "/api/users" on route "/api/*" with
	// rewrite "/v1" is forwarded as "/v1/users".
	Rewrite string `toml:"rewrite" yaml:"rewrite"`

	// Headers maps header names to templated values injected into the
	// forwarded request. Values may reference $remote_addr, $host and
	// $request_id; unknown variables pass through literally.
	Headers map[string]string `toml:"headers" yaml:"headers"`

	// TimeoutSeconds bounds the total duration of the proxied request,
	// including the single retry against an alternate target.
	// Default: 60
	TimeoutSeconds int `toml:"timeout" yaml:"timeout"`
}

// Timeout returns the route timeout as a Duration.
func (c RouteConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StaticFileConfig describes one static file mount.
type StaticFileConfig struct {
	// Path is the URL prefix served by this mount.
	Path string `toml:"path" yaml:"path"`

	// Root is the filesystem directory files are served from.
	Root string `toml:"root" yaml:"root"`

	// Index is the file served for directory requests.
	// Default: "index.html"
	Index string `toml:"index" yaml:"index"`

	// DirectoryListing enables HTML directory listings when no index
	// file exists.
	// Default: false
	DirectoryListing bool `toml:"directory_listing" yaml:"directory_listing"`
}

// TelemetryConfig contains logging and metrics configuration.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `toml:"logging" yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `toml:"metrics" yaml:"metrics"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `toml:"level" yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `toml:"format" yaml:"format"`
}

// MetricsConfig contains Prometheus metrics configuration. The metrics
// endpoint is exposed on the management listener.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `toml:"enabled" yaml:"enabled"`

	// Path is the HTTP path of the metrics endpoint.
	// Default: "/metrics"
	Path string `toml:"path" yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "janus"
	Namespace string `toml:"namespace" yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "server"
	Subsystem string `toml:"subsystem" yaml:"subsystem"`
}

// StatsConfig contains configuration for the access-record store, which
// persists per-request records for stats history and offline analysis.
type StatsConfig struct {
	// Enabled controls whether access records are persisted.
	// Default: false
	Enabled bool `toml:"enabled" yaml:"enabled"`

	// Path is the SQLite database file path.
	// Default: "data/janus-stats.db"
	Path string `toml:"path" yaml:"path"`

	// RetentionDays is how long access records are kept. Records older
	// than this are pruned on the configured schedule. 0 keeps records
	// forever.
	// Default: 30
	RetentionDays int `toml:"retention_days" yaml:"retention_days"`

	// PruneSchedule is a cron expression scheduling retention pruning.
	// Default: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string `toml:"prune_schedule" yaml:"prune_schedule"`
}
