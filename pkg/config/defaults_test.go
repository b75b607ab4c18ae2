package config

import "testing"

func TestDefaultConfigIsValid(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Errorf("Validate(DefaultConfig()) error: %v", err)
	}
}

func TestApplyDefaultsFillsZeroFields(t *testing.T) {
	cfg := &Config{
		Upstreams: map[string]UpstreamConfig{
			"api": {
				Servers:     []BackendServer{{Address: "a:80"}},
				HealthCheck: &HealthCheckConfig{},
			},
		},
		Routes:      []RouteConfig{{Path: "/api", Upstream: "api"}},
		StaticFiles: []StaticFileConfig{{Path: "/assets", Root: "/var/www"}},
	}
	ApplyDefaults(cfg)

	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("server addr = %q, want 0.0.0.0:8080", cfg.Server.Addr())
	}
	if !cfg.Server.AccessLogEnabled() {
		t.Error("access log not defaulted to true")
	}
	if !cfg.Management.IsEnabled() || cfg.Management.Addr() != "127.0.0.1:9090" {
		t.Errorf("management = %+v, want enabled on 127.0.0.1:9090", cfg.Management)
	}

	api := cfg.Upstreams["api"]
	if api.LoadBalancing != "round_robin" {
		t.Errorf("load_balancing = %q, want round_robin", api.LoadBalancing)
	}
	if api.Servers[0].Weight != 1 {
		t.Errorf("server weight = %d, want 1", api.Servers[0].Weight)
	}
	hc := api.HealthCheck
	if hc.IntervalSeconds != DefaultHealthInterval || hc.Path != DefaultHealthPath {
		t.Errorf("health check = %+v, want interval %d and path %q",
			hc, DefaultHealthInterval, DefaultHealthPath)
	}
	if hc.HealthyThreshold != 1 {
		t.Errorf("healthy threshold = %d, want 1", hc.HealthyThreshold)
	}

	if cfg.Routes[0].TimeoutSeconds != DefaultRouteTimeout {
		t.Errorf("route timeout = %d, want %d", cfg.Routes[0].TimeoutSeconds, DefaultRouteTimeout)
	}
	if cfg.StaticFiles[0].Index != DefaultIndexFile {
		t.Errorf("static index = %q, want %q", cfg.StaticFiles[0].Index, DefaultIndexFile)
	}

	if cfg.Telemetry.Logging.Level != "info" || cfg.Telemetry.Logging.Format != "json" {
		t.Errorf("logging defaults = %+v", cfg.Telemetry.Logging)
	}
	if !cfg.Telemetry.Metrics.Enabled || cfg.Telemetry.Metrics.Path != "/metrics" {
		t.Errorf("metrics defaults = %+v", cfg.Telemetry.Metrics)
	}
	if cfg.Stats.PruneSchedule != DefaultStatsPruneSchedule {
		t.Errorf("prune schedule = %q, want %q", cfg.Stats.PruneSchedule, DefaultStatsPruneSchedule)
	}
}

func TestApplyDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Server.BindAddress = "127.0.0.1"
	cfg.Server.Port = 9999
	cfg.Telemetry.Logging.Level = "debug"
	ApplyDefaults(cfg)

	if cfg.Server.Addr() != "127.0.0.1:9999" {
		t.Errorf("server addr = %q, want 127.0.0.1:9999", cfg.Server.Addr())
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug preserved", cfg.Telemetry.Logging.Level)
	}
	// A partially filled [server] section must not suppress the boolean
	// defaults for the keys it leaves out.
	if !cfg.Server.AccessLogEnabled() {
		t.Error("access log not defaulted to true alongside an explicit bind address")
	}
}

func TestApplyDefaultsBooleanPointers(t *testing.T) {
	off := false

	// Explicit false survives defaulting even when the sibling string
	// fields of the same section are set.
	cfg := &Config{}
	cfg.Server.BindAddress = "127.0.0.1"
	cfg.Server.AccessLog = &off
	cfg.Management.Address = "127.0.0.1"
	cfg.Management.Enabled = &off
	ApplyDefaults(cfg)

	if cfg.Server.AccessLogEnabled() {
		t.Error("explicit access_log = false overwritten by defaults")
	}
	if cfg.Management.IsEnabled() {
		t.Error("explicit management enabled = false overwritten by defaults")
	}

	// Absent keys get the default regardless of the rest of the section.
	cfg = &Config{}
	cfg.Management.Address = "10.0.0.1"
	ApplyDefaults(cfg)

	if !cfg.Management.IsEnabled() {
		t.Error("management disabled by setting only its address")
	}
	if cfg.Management.Address != "10.0.0.1" {
		t.Errorf("management address = %q, want 10.0.0.1 preserved", cfg.Management.Address)
	}
}
