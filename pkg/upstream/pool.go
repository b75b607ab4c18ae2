package upstream

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/Evoker-Industries/Janus/pkg/config"
)

// Pool owns every upstream built from the current configuration snapshot
// and reconciles them when a new generation is published. Selection and
// release are safe for concurrent use from any number of request goroutines;
// Reconcile and the management mutations are serialized by the pool lock.
type Pool struct {
	logger *slog.Logger

	mu         sync.RWMutex
	upstreams  map[string]*Upstream
	generation uint64

	// orphans holds draining targets whose upstream was removed entirely.
	// They are dropped when their last in-flight request completes.
	orphans []*Target

	// probing state, guarded by mu. probeCtx is nil until StartProbing.
	probers  map[string]*Prober
	probeCtx context.Context
}

// NewPool builds a pool from the initial configuration snapshot.
func NewPool(snap *config.Snapshot, logger *slog.Logger) *Pool {
	p := &Pool{
		logger:    logger,
		upstreams: make(map[string]*Upstream),
		probers:   make(map[string]*Prober),
	}
	p.Reconcile(snap)
	return p
}

// Generation returns the config generation the pool last reconciled to.
func (p *Pool) Generation() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.generation
}

// Select picks a target from the named upstream according to its strategy
// and increments the target's in-flight counter. Every successful Select
// must be paired with exactly one Release.
func (p *Pool) Select(name, clientIP string) (*Target, error) {
	p.mu.RLock()
	u, ok := p.upstreams[name]
	p.mu.RUnlock()
	if !ok {
		return nil, &UnknownUpstreamError{Name: name}
	}
	return u.selectTarget(clientIP, nil)
}

// SelectAlternate picks a target other than failed, for the single retry
// after a dispatch failure. With ip_hash the hash is recomputed over the
// remaining targets, so an affine client still fails over. Returns
// ErrNoHealthyTarget when the failed target was the only eligible one.
func (p *Pool) SelectAlternate(name, clientIP string, failed *Target) (*Target, error) {
	p.mu.RLock()
	u, ok := p.upstreams[name]
	p.mu.RUnlock()
	if !ok {
		return nil, &UnknownUpstreamError{Name: name}
	}
	return u.selectTarget(clientIP, failed)
}

// Release returns a target obtained from Select. When the last in-flight
// request leaves a draining target, the target is dropped for good.
func (p *Pool) Release(t *Target) {
	if t.release() > 0 || !t.Draining() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.upstreams[t.upstream]; ok {
		u.finishDrain(t)
	}
	for i, o := range p.orphans {
		if o == t {
			p.orphans = append(p.orphans[:i:i], p.orphans[i+1:]...)
			break
		}
	}
	p.logger.Info("upstream target drained",
		slog.String("upstream", t.upstream),
		slog.String("address", t.Address))
}

// Upstream returns the named upstream, or nil if it is not configured.
func (p *Pool) Upstream(name string) *Upstream {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.upstreams[name]
}

// Names returns the configured upstream names in sorted order.
func (p *Pool) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.upstreams))
	for name := range p.upstreams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetTargetHealth overrides the health state of one target. The override
// holds until the next probe result or another override replaces it.
func (p *Pool) SetTargetHealth(upstream, address string, state HealthState) error {
	p.mu.RLock()
	u, ok := p.upstreams[upstream]
	p.mu.RUnlock()
	if !ok {
		return &UnknownUpstreamError{Name: upstream}
	}
	t := u.findTarget(address)
	if t == nil {
		return ErrUnknownTarget
	}
	t.SetHealth(state)
	p.logger.Info("target health overridden",
		slog.String("upstream", upstream),
		slog.String("address", address),
		slog.String("health", state.String()))
	return nil
}

// DeleteTarget removes one target from the named upstream until the next
// configuration reload re-adds it. A target with requests in flight drains
// instead of being dropped immediately.
func (p *Pool) DeleteTarget(upstream, address string) error {
	p.mu.RLock()
	u, ok := p.upstreams[upstream]
	p.mu.RUnlock()
	if !ok {
		return &UnknownUpstreamError{Name: upstream}
	}
	t := u.removeTarget(address)
	if t == nil {
		return ErrUnknownTarget
	}
	p.logger.Info("target deleted",
		slog.String("upstream", upstream),
		slog.String("address", address),
		slog.Bool("draining", t.Draining()))
	return nil
}

// Reconcile rebuilds the upstream set from a new configuration snapshot.
// Targets whose address survives the change keep their health, in-flight,
// and failure state. Removed targets with requests in flight drain out;
// upstreams whose membership, strategy, and health check are unchanged are
// kept as-is, preserving their rotation cursor.
func (p *Pool) Reconcile(snap *config.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := make(map[string]*Upstream, len(snap.Config.Upstreams))
	for name, cfg := range snap.Config.Upstreams {
		old := p.upstreams[name]
		if old != nil && upstreamUnchanged(old, cfg) {
			next[name] = old
			continue
		}
		next[name] = p.buildUpstream(name, cfg, old)
	}

	// Upstreams removed from the configuration: park any busy targets as
	// orphans so Release can finish them off.
	for name, old := range p.upstreams {
		if _, kept := next[name]; kept {
			continue
		}
		for _, t := range append(old.Targets(), old.DrainingTargets()...) {
			if t.InFlight() > 0 {
				t.draining.Store(true)
				p.orphans = append(p.orphans, t)
			}
		}
		p.logger.Info("upstream removed", slog.String("upstream", name))
	}

	p.upstreams = next
	p.generation = snap.Generation
	p.restartProbers()
}

// buildUpstream constructs an upstream from its configuration, carrying
// over target state from the previous instance where addresses match.
func (p *Pool) buildUpstream(name string, cfg config.UpstreamConfig, old *Upstream) *Upstream {
	strategy, _ := ParseStrategy(cfg.LoadBalancing)
	u := &Upstream{
		Name:        name,
		strategy:    strategy,
		healthCheck: cfg.HealthCheck,
	}

	for _, server := range cfg.Servers {
		weight := server.Weight
		if weight <= 0 {
			weight = 1
		}
		if old != nil {
			if t := old.findTarget(server.Address); t != nil {
				t.setWeight(weight)
				u.targets = append(u.targets, t)
				continue
			}
		}
		u.targets = append(u.targets, newTarget(name, server.Address, weight))
	}

	if old == nil {
		return u
	}

	// Old targets not carried over drain out on the new instance; old
	// drains that have not finished yet are carried along with them.
	for _, t := range old.Targets() {
		if u.findTarget(t.Address) == nil && t.InFlight() > 0 {
			t.draining.Store(true)
			u.draining = append(u.draining, t)
		}
	}
	u.draining = append(u.draining, old.DrainingTargets()...)
	return u
}

// upstreamUnchanged reports whether the configured strategy, membership,
// and health check match the live upstream exactly.
func upstreamUnchanged(u *Upstream, cfg config.UpstreamConfig) bool {
	strategy, _ := ParseStrategy(cfg.LoadBalancing)
	if u.strategy != strategy {
		return false
	}
	targets := u.Targets()
	if len(targets) != len(cfg.Servers) {
		return false
	}
	for i, server := range cfg.Servers {
		weight := server.Weight
		if weight <= 0 {
			weight = 1
		}
		if targets[i].Address != server.Address || targets[i].Weight() != weight {
			return false
		}
	}
	return healthCheckEqual(u.healthCheck, cfg.HealthCheck)
}

func healthCheckEqual(a, b *config.HealthCheckConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// StartProbing launches a health prober for every upstream that configures
// one. Probers started later by Reconcile inherit the same context.
func (p *Pool) StartProbing(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probeCtx = ctx
	p.restartProbers()
}

// StopProbing stops all running probers and waits for them to exit.
func (p *Pool) StopProbing() {
	p.mu.Lock()
	probers := p.probers
	p.probers = make(map[string]*Prober)
	p.probeCtx = nil
	p.mu.Unlock()

	for _, prober := range probers {
		prober.stop()
	}
}

// restartProbers aligns running probers with the current upstream set.
// Caller holds p.mu.
func (p *Pool) restartProbers() {
	if p.probeCtx == nil {
		return
	}
	for name, prober := range p.probers {
		if u, ok := p.upstreams[name]; ok && u == prober.upstream {
			continue
		}
		prober.stop()
		delete(p.probers, name)
	}
	for name, u := range p.upstreams {
		if u.healthCheck == nil {
			continue
		}
		if _, running := p.probers[name]; running {
			continue
		}
		prober := newProber(u, p.logger)
		prober.start(p.probeCtx)
		p.probers[name] = prober
	}
}
