// Janus is a reverse proxy and static file server with live configuration
// reloads and a management control plane.
//
// It routes HTTP traffic to weighted upstream pools, providing:
//   - Ordered route matching with path rewriting and header templating
//   - Round-robin, least-connections, random and IP-hash load balancing
//   - Active health probing with automatic failover and retry
//   - Static file serving with optional directory listings
//   - Zero-downtime configuration reloads from file changes
//   - A WebSocket management interface for live inspection and overrides
//
// Usage:
//
//	# Start server with default configuration
//	janus run
//
//	# Start with custom configuration file
//	janus run --config /etc/janus/janus.toml
//
//	# Validate a configuration file without starting
//	janus validate --config janus.toml
//
//	# Show version information
//	janus version
package main

func main() {
	Execute()
}
