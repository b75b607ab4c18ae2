package config

import (
	"strings"
	"testing"
)

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := validTestConfig()
	cfg.Upstreams["backend"] = UpstreamConfig{
		LoadBalancing: "least_connections",
		Servers: []BackendServer{
			{Address: "10.0.0.1:80", Weight: 2},
			{Address: "10.0.0.2:80", Weight: 1},
		},
		HealthCheck: &HealthCheckConfig{
			IntervalSeconds:  10,
			TimeoutSeconds:   2,
			Path:             "/healthz",
			HealthyThreshold: 3,
		},
	}
	cfg.StaticFiles = []StaticFileConfig{
		{Path: "/assets", Root: "/var/www", Index: "index.html"},
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestValidateFieldErrors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "port out of range",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantField: "server.port",
		},
		{
			name: "rate limit enabled without rate",
			mutate: func(c *Config) {
				c.Server.RateLimit = RateLimitConfig{Enabled: true, Burst: 10}
			},
			wantField: "server.rate_limit.requests_per_second",
		},
		{
			name:      "management port invalid",
			mutate:    func(c *Config) { c.Management.Port = -1 },
			wantField: "management.port",
		},
		{
			name: "upstream without servers",
			mutate: func(c *Config) {
				c.Upstreams["empty"] = UpstreamConfig{LoadBalancing: "round_robin"}
			},
			wantField: "upstreams.empty.servers",
		},
		{
			name: "zero weight",
			mutate: func(c *Config) {
				up := c.Upstreams["api"]
				up.Servers = []BackendServer{{Address: "a:80", Weight: 0}}
				c.Upstreams["api"] = up
			},
			wantField: "upstreams.api.servers[0].weight",
		},
		{
			name: "unknown strategy",
			mutate: func(c *Config) {
				up := c.Upstreams["api"]
				up.LoadBalancing = "fastest"
				c.Upstreams["api"] = up
			},
			wantField: "upstreams.api.load_balancing",
		},
		{
			name: "health check path without slash",
			mutate: func(c *Config) {
				up := c.Upstreams["api"]
				up.HealthCheck = &HealthCheckConfig{
					IntervalSeconds:  5,
					TimeoutSeconds:   1,
					Path:             "health",
					HealthyThreshold: 1,
				}
				c.Upstreams["api"] = up
			},
			wantField: "upstreams.api.health_check.path",
		},
		{
			name:      "route path without slash",
			mutate:    func(c *Config) { c.Routes[0].Path = "api/*" },
			wantField: "routes[0].path",
		},
		{
			name:      "route unknown upstream",
			mutate:    func(c *Config) { c.Routes[0].Upstream = "ghost" },
			wantField: "routes[0].upstream",
		},
		{
			name:      "route unknown method",
			mutate:    func(c *Config) { c.Routes[0].Methods = []string{"FETCH"} },
			wantField: "routes[0].methods",
		},
		{
			name:      "route zero timeout",
			mutate:    func(c *Config) { c.Routes[0].TimeoutSeconds = 0 },
			wantField: "routes[0].timeout",
		},
		{
			name: "static mount without root",
			mutate: func(c *Config) {
				c.StaticFiles = []StaticFileConfig{{Path: "/assets"}}
			},
			wantField: "static_files[0].root",
		},
		{
			name:      "unknown log level",
			mutate:    func(c *Config) { c.Telemetry.Logging.Level = "trace" },
			wantField: "telemetry.logging.level",
		},
		{
			name:      "unknown log format",
			mutate:    func(c *Config) { c.Telemetry.Logging.Format = "logfmt" },
			wantField: "telemetry.logging.format",
		},
		{
			name: "bad prune schedule",
			mutate: func(c *Config) {
				c.Stats.Enabled = true
				c.Stats.PruneSchedule = "every day at 3"
			},
			wantField: "stats.prune_schedule",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}
			verr, ok := err.(ValidationError)
			if !ok {
				t.Fatalf("Validate() error type %T, want ValidationError", err)
			}
			for _, fieldErr := range verr.Errors {
				if fieldErr.Field == tt.wantField {
					return
				}
			}
			t.Errorf("no error for field %q in %v", tt.wantField, verr.Errors)
		})
	}
}

func TestValidateCollectsEveryError(t *testing.T) {
	cfg := validTestConfig()
	cfg.Server.Port = 0
	cfg.Routes[0].Upstream = "ghost"
	cfg.Telemetry.Logging.Level = "loud"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() returned nil, want error")
	}
	verr := err.(ValidationError)
	if len(verr.Errors) < 3 {
		t.Errorf("collected %d errors, want at least 3: %v", len(verr.Errors), verr.Errors)
	}
	if !strings.Contains(verr.Error(), "3 errors") {
		t.Errorf("Error() = %q, want the error count included", verr.Error())
	}
}
