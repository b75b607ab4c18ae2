package upstream

import (
	"sync"
	"sync/atomic"

	"github.com/Evoker-Industries/Janus/pkg/config"
)

// Upstream is a named, load-balanced group of backend targets. The target
// set is replaced wholesale on reconciliation; individual Target state
// (health, in-flight, failures) is carried over for addresses that survive
// the change.
type Upstream struct {
	// Name is the upstream's configuration name.
	Name string

	strategy Strategy

	// mu guards targets and draining. It is held briefly: selection takes
	// a read lock only long enough to copy the eligible slice; the single
	// writer is reconciliation and management mutation.
	mu       sync.RWMutex
	targets  []*Target // declaration order
	draining []*Target

	// cursor is the round-robin rotation cursor.
	cursor atomic.Uint64

	// healthCheck is the probe configuration, nil when probing is disabled.
	healthCheck *config.HealthCheckConfig
}

// Strategy returns the upstream's load balancing strategy.
func (u *Upstream) Strategy() Strategy {
	return u.strategy
}

// Targets returns a copy of the current target slice in declaration order.
func (u *Upstream) Targets() []*Target {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]*Target, len(u.targets))
	copy(out, u.targets)
	return out
}

// DrainingTargets returns a copy of the targets currently draining.
func (u *Upstream) DrainingTargets() []*Target {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]*Target, len(u.draining))
	copy(out, u.draining)
	return out
}

// selectTarget picks an eligible target and increments its in-flight counter on
// behalf of the caller. Eligibility: Healthy targets; if none are Healthy,
// targets of Unknown health (fail open before the first probe). A non-nil
// exclude is skipped so a retry lands on a different target even under
// deterministic strategies. Returns ErrNoHealthyTarget when nothing is
// eligible.
func (u *Upstream) selectTarget(clientIP string, exclude *Target) (*Target, error) {
	u.mu.RLock()
	var healthy, unknown []*Target
	for _, t := range u.targets {
		if t == exclude {
			continue
		}
		switch t.Health() {
		case Healthy:
			healthy = append(healthy, t)
		case Unknown:
			unknown = append(unknown, t)
		}
	}
	total := len(u.targets)
	u.mu.RUnlock()

	eligible := healthy
	if len(eligible) == 0 {
		eligible = unknown
	}
	if len(eligible) == 0 {
		return nil, &NoHealthyTargetError{Upstream: u.Name, Targets: total}
	}

	t := u.strategy.pick(eligible, clientIP, &u.cursor)
	t.acquire()
	return t, nil
}

// findTarget returns the active target with the given address, or nil.
func (u *Upstream) findTarget(address string) *Target {
	u.mu.RLock()
	defer u.mu.RUnlock()
	for _, t := range u.targets {
		if t.Address == address {
			return t
		}
	}
	return nil
}

// removeTarget detaches the target with the given address from the active
// set. If it still has requests in flight it is parked on the draining list
// and dropped when the last request completes; otherwise it is dropped
// immediately. Returns the target, or nil if the address is not active.
func (u *Upstream) removeTarget(address string) *Target {
	u.mu.Lock()
	defer u.mu.Unlock()

	for i, t := range u.targets {
		if t.Address != address {
			continue
		}
		u.targets = append(u.targets[:i:i], u.targets[i+1:]...)
		if t.InFlight() > 0 {
			t.draining.Store(true)
			u.draining = append(u.draining, t)
		}
		return t
	}
	return nil
}

// finishDrain drops a drained target from the draining list.
func (u *Upstream) finishDrain(target *Target) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for i, t := range u.draining {
		if t == target {
			u.draining = append(u.draining[:i:i], u.draining[i+1:]...)
			return
		}
	}
}
