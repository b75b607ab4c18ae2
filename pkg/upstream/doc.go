// Package upstream tracks backend server groups and picks targets for
// proxied requests.
//
// A Pool holds one Upstream per configured backend group. When a new
// configuration generation is published the pool reconciles: targets whose
// address survives the change keep their health and in-flight state, new
// addresses start Unknown, and removed addresses drain out once their last
// in-flight request completes.
//
// Selection supports weighted round robin, least connections, random, and
// client IP hashing. Only Healthy targets are eligible; when an upstream
// has no Healthy target yet, Unknown targets are tried so that traffic
// flows before the first probe round. Health probing is per upstream: one
// failed probe marks a target Unhealthy, and a configurable run of
// consecutive successes brings it back.
package upstream
