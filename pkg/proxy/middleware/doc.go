// Package middleware provides the HTTP middleware chain wrapped around the
// router: request ID assignment, panic recovery, access logging with stats
// and metrics fan-out, and per-client rate limiting.
package middleware
