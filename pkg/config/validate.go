package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field
	// (e.g. "routes[2].upstream").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// validLoadBalancing is the closed set of selection strategies.
var validLoadBalancing = map[string]bool{
	"round_robin":       true,
	"least_connections": true,
	"random":            true,
	"ip_hash":           true,
}

// validMethods is the set of HTTP methods accepted in route method lists.
var validMethods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true, "PUT": true, "PATCH": true,
	"DELETE": true, "CONNECT": true, "OPTIONS": true, "TRACE": true,
}

// Validate validates the entire configuration, including the cross-reference
// check that every route's upstream exists. All validation errors are
// collected and returned together as a ValidationError; a nil return means
// the configuration is valid.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateManagement(&cfg.Management)...)
	errs = append(errs, validateUpstreams(cfg.Upstreams)...)
	errs = append(errs, validateRoutes(cfg.Routes, cfg.Upstreams)...)
	errs = append(errs, validateStaticFiles(cfg.StaticFiles)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateStats(&cfg.Stats)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.Port <= 0 || cfg.Port > 65535 {
		errs = append(errs, FieldError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be in 1-65535, got %d", cfg.Port),
		})
	}
	if cfg.Workers < 0 {
		errs = append(errs, FieldError{
			Field:   "server.workers",
			Message: "worker count must be non-negative (0 = auto)",
		})
	}
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.RequestsPerSecond <= 0 {
			errs = append(errs, FieldError{
				Field:   "server.rate_limit.requests_per_second",
				Message: "rate must be positive when rate limiting is enabled",
			})
		}
		if cfg.RateLimit.Burst <= 0 {
			errs = append(errs, FieldError{
				Field:   "server.rate_limit.burst",
				Message: "burst must be positive when rate limiting is enabled",
			})
		}
	}

	return errs
}

func validateManagement(cfg *ManagementConfig) []FieldError {
	var errs []FieldError

	if cfg.IsEnabled() && (cfg.Port <= 0 || cfg.Port > 65535) {
		errs = append(errs, FieldError{
			Field:   "management.port",
			Message: fmt.Sprintf("port must be in 1-65535, got %d", cfg.Port),
		})
	}

	return errs
}

func validateUpstreams(upstreams map[string]UpstreamConfig) []FieldError {
	var errs []FieldError

	for name, up := range upstreams {
		prefix := fmt.Sprintf("upstreams.%s", name)

		if len(up.Servers) == 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".servers",
				Message: "upstream must declare at least one server",
			})
		}
		for i, srv := range up.Servers {
			if srv.Address == "" {
				errs = append(errs, FieldError{
					Field:   fmt.Sprintf("%s.servers[%d].address", prefix, i),
					Message: "server address is required",
				})
			}
			if srv.Weight <= 0 {
				errs = append(errs, FieldError{
					Field:   fmt.Sprintf("%s.servers[%d].weight", prefix, i),
					Message: fmt.Sprintf("weight must be positive, got %d", srv.Weight),
				})
			}
		}

		if !validLoadBalancing[up.LoadBalancing] {
			errs = append(errs, FieldError{
				Field: prefix + ".load_balancing",
				Message: fmt.Sprintf("unknown strategy %q (valid: round_robin, least_connections, random, ip_hash)",
					up.LoadBalancing),
			})
		}

		if hc := up.HealthCheck; hc != nil {
			if hc.IntervalSeconds <= 0 {
				errs = append(errs, FieldError{
					Field:   prefix + ".health_check.interval",
					Message: "probe interval must be positive",
				})
			}
			if hc.TimeoutSeconds <= 0 {
				errs = append(errs, FieldError{
					Field:   prefix + ".health_check.timeout",
					Message: "probe timeout must be positive",
				})
			}
			if !strings.HasPrefix(hc.Path, "/") {
				errs = append(errs, FieldError{
					Field:   prefix + ".health_check.path",
					Message: fmt.Sprintf("probe path must start with '/', got %q", hc.Path),
				})
			}
			if hc.HealthyThreshold <= 0 {
				errs = append(errs, FieldError{
					Field:   prefix + ".health_check.healthy_threshold",
					Message: "healthy threshold must be positive",
				})
			}
		}
	}

	return errs
}

func validateRoutes(routes []RouteConfig, upstreams map[string]UpstreamConfig) []FieldError {
	var errs []FieldError

	for i, route := range routes {
		prefix := fmt.Sprintf("routes[%d]", i)

		if route.Path == "" {
			errs = append(errs, FieldError{
				Field:   prefix + ".path",
				Message: "route path is required",
			})
		} else if !strings.HasPrefix(route.Path, "/") {
			errs = append(errs, FieldError{
				Field:   prefix + ".path",
				Message: fmt.Sprintf("route path must start with '/', got %q", route.Path),
			})
		}

		if route.Upstream == "" {
			errs = append(errs, FieldError{
				Field:   prefix + ".upstream",
				Message: "route upstream is required",
			})
		} else if _, ok := upstreams[route.Upstream]; !ok {
			errs = append(errs, FieldError{
				Field:   prefix + ".upstream",
				Message: fmt.Sprintf("route %q references unknown upstream %q", route.Path, route.Upstream),
			})
		}

		for _, m := range route.Methods {
			if !validMethods[strings.ToUpper(m)] {
				errs = append(errs, FieldError{
					Field:   prefix + ".methods",
					Message: fmt.Sprintf("unknown HTTP method %q", m),
				})
			}
		}

		if route.TimeoutSeconds <= 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".timeout",
				Message: "route timeout must be positive",
			})
		}
	}

	return errs
}

func validateStaticFiles(mounts []StaticFileConfig) []FieldError {
	var errs []FieldError

	for i, mount := range mounts {
		prefix := fmt.Sprintf("static_files[%d]", i)

		if !strings.HasPrefix(mount.Path, "/") {
			errs = append(errs, FieldError{
				Field:   prefix + ".path",
				Message: fmt.Sprintf("mount path must start with '/', got %q", mount.Path),
			})
		}
		if mount.Root == "" {
			errs = append(errs, FieldError{
				Field:   prefix + ".root",
				Message: "mount root directory is required",
			})
		}
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("unknown log level %q (valid: debug, info, warn, error)", cfg.Logging.Level),
		})
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("unknown log format %q (valid: json, text)", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: fmt.Sprintf("metrics path must start with '/', got %q", cfg.Metrics.Path),
		})
	}

	return errs
}

func validateStats(cfg *StatsConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return nil
	}
	if cfg.Path == "" {
		errs = append(errs, FieldError{
			Field:   "stats.path",
			Message: "database path is required when stats persistence is enabled",
		})
	}
	if cfg.RetentionDays < 0 {
		errs = append(errs, FieldError{
			Field:   "stats.retention_days",
			Message: "retention days must be non-negative (0 = keep forever)",
		})
	}
	if cfg.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "stats.prune_schedule",
				Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.PruneSchedule, err),
			})
		}
	}

	return errs
}
