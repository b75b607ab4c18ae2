package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Evoker-Industries/Janus/pkg/config"
)

// Collector owns every Prometheus metric the proxy exports. All Record
// methods are no-ops when metrics are disabled, so call sites never need to
// check the configuration themselves.
type Collector struct {
	config   config.MetricsConfig
	registry *prometheus.Registry

	// Request metrics
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	// Upstream metrics
	upstreamRequests *prometheus.CounterVec
	upstreamRetries  *prometheus.CounterVec
	upstreamErrors   *prometheus.CounterVec

	// Configuration metrics
	configGeneration prometheus.Gauge
	configReloads    *prometheus.CounterVec
}

// NewCollector creates a collector and registers its metrics with the given
// registry. If registry is nil a fresh one is created.
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "janus"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "server"
	}

	c := &Collector{
		config:   cfg,
		registry: registry,

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_total",
				Help:      "Total number of requests served, by handler kind and status class",
			},
			[]string{"kind", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "Duration of served requests in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"kind"},
		),

		upstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "upstream_requests_total",
				Help:      "Total number of requests dispatched to upstream targets",
			},
			[]string{"upstream", "address", "status"},
		),

		upstreamRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "upstream_retries_total",
				Help:      "Total number of requests retried against an alternate target",
			},
			[]string{"upstream"},
		),

		upstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "upstream_errors_total",
				Help:      "Total number of upstream dispatch failures, by reason",
			},
			[]string{"upstream", "reason"},
		),

		configGeneration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "config_generation",
				Help:      "Generation number of the active configuration snapshot",
			},
		),

		configReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "config_reloads_total",
				Help:      "Total number of configuration reload attempts, by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.upstreamRequests,
		c.upstreamRetries,
		c.upstreamErrors,
		c.configGeneration,
		c.configReloads,
	)

	return c
}

// RecordRequest records one served request. kind is "proxy" or "static",
// status is a status class such as "2xx".
func (c *Collector) RecordRequest(kind, status string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.requestsTotal.WithLabelValues(kind, status).Inc()
	c.requestDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordUpstreamRequest records one request dispatched to a target.
func (c *Collector) RecordUpstreamRequest(upstream, address, status string) {
	if !c.config.Enabled {
		return
	}
	c.upstreamRequests.WithLabelValues(upstream, address, status).Inc()
}

// RecordRetry records a request being retried against an alternate target.
func (c *Collector) RecordRetry(upstream string) {
	if !c.config.Enabled {
		return
	}
	c.upstreamRetries.WithLabelValues(upstream).Inc()
}

// RecordUpstreamError records a dispatch failure. reason is a short token
// such as "no_healthy_target", "connect", or "timeout".
func (c *Collector) RecordUpstreamError(upstream, reason string) {
	if !c.config.Enabled {
		return
	}
	c.upstreamErrors.WithLabelValues(upstream, reason).Inc()
}

// SetConfigGeneration publishes the active configuration generation.
func (c *Collector) SetConfigGeneration(generation uint64) {
	if !c.config.Enabled {
		return
	}
	c.configGeneration.Set(float64(generation))
}

// RecordReload records a configuration reload attempt. result is "success"
// or "error".
func (c *Collector) RecordReload(result string) {
	if !c.config.Enabled {
		return
	}
	c.configReloads.WithLabelValues(result).Inc()
}
