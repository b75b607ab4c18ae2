// Package metrics exports Prometheus metrics for request handling,
// upstream dispatch, and configuration reloads. The Collector registers
// everything against a private registry and serves it on the management
// listener's scrape endpoint.
package metrics
