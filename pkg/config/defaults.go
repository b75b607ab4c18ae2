package config

import (
	"net"
	"strconv"
)

// Default values for configuration fields.
const (
	// Server defaults
	DefaultBindAddress     = "0.0.0.0"
	DefaultPort            = 8080
	DefaultWorkers         = 0 // auto
	DefaultAccessLog       = true
	DefaultShutdownTimeout = 30 // seconds

	// Rate limit defaults
	DefaultRateLimitEnabled = false
	DefaultRateLimitRPS     = 100.0
	DefaultRateLimitBurst   = 200

	// Management defaults
	DefaultManagementEnabled = true
	DefaultManagementAddress = "127.0.0.1"
	DefaultManagementPort    = 9090

	// Upstream defaults
	DefaultLoadBalancing    = "round_robin"
	DefaultServerWeight     = 1
	DefaultHealthInterval   = 30 // seconds
	DefaultHealthTimeout    = 5  // seconds
	DefaultHealthPath       = "/health"
	DefaultHealthyThreshold = 1

	// Route defaults
	DefaultRouteTimeout = 60 // seconds

	// Static file defaults
	DefaultIndexFile = "index.html"

	// Telemetry defaults
	DefaultLoggingLevel    = "info"
	DefaultLoggingFormat   = "json"
	DefaultMetricsEnabled  = true
	DefaultMetricsPath     = "/metrics"
	DefaultMetricsNS       = "janus"
	DefaultMetricsSub      = "server"

	// Stats defaults
	DefaultStatsEnabled       = false
	DefaultStatsPath          = "data/janus-stats.db"
	DefaultStatsRetentionDays = 30
	DefaultStatsPruneSchedule = "0 3 * * *"
)

// DefaultConfig returns a configuration populated with all default values
// and no upstreams, routes, or static mounts.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in default values for any zero-valued fields.
// Boolean fields that default to true are pointers so the decoders can
// distinguish an absent key from an explicit `false`; only nil pointers are
// filled here.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.BindAddress == "" {
		cfg.Server.BindAddress = DefaultBindAddress
	}
	if cfg.Server.AccessLog == nil {
		v := DefaultAccessLog
		cfg.Server.AccessLog = &v
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.ShutdownTimeoutSeconds == 0 {
		cfg.Server.ShutdownTimeoutSeconds = DefaultShutdownTimeout
	}
	if cfg.Server.RateLimit.RequestsPerSecond == 0 {
		cfg.Server.RateLimit.RequestsPerSecond = DefaultRateLimitRPS
	}
	if cfg.Server.RateLimit.Burst == 0 {
		cfg.Server.RateLimit.Burst = DefaultRateLimitBurst
	}

	if cfg.Management.Address == "" {
		cfg.Management.Address = DefaultManagementAddress
	}
	if cfg.Management.Enabled == nil {
		v := DefaultManagementEnabled
		cfg.Management.Enabled = &v
	}
	if cfg.Management.Port == 0 {
		cfg.Management.Port = DefaultManagementPort
	}

	for name, up := range cfg.Upstreams {
		if up.LoadBalancing == "" {
			up.LoadBalancing = DefaultLoadBalancing
		}
		for i := range up.Servers {
			if up.Servers[i].Weight == 0 {
				up.Servers[i].Weight = DefaultServerWeight
			}
		}
		if hc := up.HealthCheck; hc != nil {
			if hc.IntervalSeconds == 0 {
				hc.IntervalSeconds = DefaultHealthInterval
			}
			if hc.TimeoutSeconds == 0 {
				hc.TimeoutSeconds = DefaultHealthTimeout
			}
			if hc.Path == "" {
				hc.Path = DefaultHealthPath
			}
			if hc.HealthyThreshold == 0 {
				hc.HealthyThreshold = DefaultHealthyThreshold
			}
		}
		cfg.Upstreams[name] = up
	}

	for i := range cfg.Routes {
		if cfg.Routes[i].TimeoutSeconds == 0 {
			cfg.Routes[i].TimeoutSeconds = DefaultRouteTimeout
		}
	}

	for i := range cfg.StaticFiles {
		if cfg.StaticFiles[i].Index == "" {
			cfg.StaticFiles[i].Index = DefaultIndexFile
		}
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
		cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNS
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSub
	}

	if cfg.Stats.Path == "" {
		cfg.Stats.Path = DefaultStatsPath
	}
	if cfg.Stats.RetentionDays == 0 {
		cfg.Stats.RetentionDays = DefaultStatsRetentionDays
	}
	if cfg.Stats.PruneSchedule == "" {
		cfg.Stats.PruneSchedule = DefaultStatsPruneSchedule
	}
}

// joinHostPort joins a host and numeric port into host:port form.
func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
