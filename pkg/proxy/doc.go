// Package proxy implements the request path: a Router that matches static
// file mounts and proxy routes in declaration order, forwards matched
// requests to upstream targets with prefix rewriting, header templating,
// per-route timeouts, and a single retry against an alternate target on
// connect or timeout failures.
//
// Routing is snapshot-scoped. The router compiles a routing table per
// configuration generation and every request is matched entirely against
// one table, so concurrent reloads never produce a half-old, half-new
// dispatch decision.
package proxy
