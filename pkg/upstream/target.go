package upstream

import (
	"sync/atomic"
)

// HealthState is the health of a single backend target.
type HealthState int32

const (
	// Unknown means no health probe has run against the target yet.
	// Unknown targets are eligible for selection when no Healthy target
	// exists (fail open on first use).
	Unknown HealthState = iota

	// Healthy means the target passed its most recent probe, or was
	// marked healthy by a management override.
	Healthy

	// Unhealthy means the target failed a probe or was marked unhealthy
	// by a management override. Unhealthy targets are never selected.
	Unhealthy
)

// String returns the lowercase name of the health state.
func (s HealthState) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Unhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// ParseHealthState parses a health state name as used on the management wire.
func ParseHealthState(s string) (HealthState, bool) {
	switch s {
	case "healthy":
		return Healthy, true
	case "unhealthy":
		return Unhealthy, true
	case "unknown":
		return Unknown, true
	default:
		return Unknown, false
	}
}

// Target is one backend server address within an upstream, together with its
// health and accounting state. Health, in-flight, and failure fields are
// independent atomics so every request path can update them without locking;
// the Pool is the only writer of the identity fields (Address).
//
// A Target survives configuration reloads as long as its address stays in
// the upstream, so health state and in-flight counts are not reset by
// unrelated config edits.
type Target struct {
	// Address is the backend address in host:port form.
	Address string

	// upstream is the owning upstream's name, used to finalize drains.
	upstream string

	// weight is atomic because reconciliation may adjust it for a
	// surviving address while selection reads it.
	weight    atomic.Int32
	health    atomic.Int32
	inFlight  atomic.Int64
	failures  atomic.Int64
	successes atomic.Int32 // consecutive probe successes while not Healthy
	draining  atomic.Bool
}

func newTarget(upstream, address string, weight int) *Target {
	t := &Target{
		Address:  address,
		upstream: upstream,
	}
	t.weight.Store(int32(weight))
	return t
}

// Weight returns the target's relative selection weight, always positive.
func (t *Target) Weight() int {
	return int(t.weight.Load())
}

// setWeight updates the selection weight during reconciliation.
func (t *Target) setWeight(w int) {
	t.weight.Store(int32(w))
}

// Health returns the target's current health state.
func (t *Target) Health() HealthState {
	return HealthState(t.health.Load())
}

// SetHealth sets the target's health state and resets the consecutive
// success counter. Used by the prober and by management overrides.
func (t *Target) SetHealth(s HealthState) {
	t.health.Store(int32(s))
	t.successes.Store(0)
}

// InFlight returns the number of requests currently dispatched to the target.
func (t *Target) InFlight() int64 {
	return t.inFlight.Load()
}

// Failures returns the cumulative failure count for the target.
func (t *Target) Failures() int64 {
	return t.failures.Load()
}

// Draining reports whether the target has been removed from the
// configuration and is waiting for its in-flight requests to complete.
func (t *Target) Draining() bool {
	return t.draining.Load()
}

// acquire increments the in-flight counter. Called by the Pool on behalf of
// the Router when the target is selected.
func (t *Target) acquire() {
	t.inFlight.Add(1)
}

// release decrements the in-flight counter and returns the new value.
func (t *Target) release() int64 {
	return t.inFlight.Add(-1)
}

// RecordFailure increments the cumulative failure counter. This feeds, but
// does not equal, health-check state transitions.
func (t *Target) RecordFailure() {
	t.failures.Add(1)
}
