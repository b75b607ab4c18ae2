package upstream

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync/atomic"
)

// Strategy is the closed set of target selection strategies. The set is
// fixed and small, so selection is a switch over the variant rather than an
// open interface.
type Strategy int32

const (
	// RoundRobin cycles targets in declaration order; weight is expressed
	// as repeated slots in the rotation sequence.
	RoundRobin Strategy = iota

	// LeastConnections picks the eligible target with the smallest
	// in-flight count, ties broken by declaration order.
	LeastConnections

	// Random picks uniformly among eligible targets, weighted by their
	// declared weight.
	Random

	// IPHash maps a deterministic hash of the client IP into weighted
	// ranges, giving the same client the same target while membership
	// and health are unchanged.
	IPHash
)

// String returns the configuration name of the strategy.
func (s Strategy) String() string {
	switch s {
	case LeastConnections:
		return "least_connections"
	case Random:
		return "random"
	case IPHash:
		return "ip_hash"
	default:
		return "round_robin"
	}
}

// ParseStrategy parses a strategy name as it appears in configuration.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "round_robin", "":
		return RoundRobin, nil
	case "least_connections":
		return LeastConnections, nil
	case "random":
		return Random, nil
	case "ip_hash":
		return IPHash, nil
	default:
		return RoundRobin, fmt.Errorf("unknown load balancing strategy %q", name)
	}
}

// pick selects one target from the eligible list according to the strategy.
// eligible is non-empty and in declaration order. cursor is the upstream's
// rotation cursor, shared across calls for round robin.
func (s Strategy) pick(eligible []*Target, clientIP string, cursor *atomic.Uint64) *Target {
	if len(eligible) == 1 {
		return eligible[0]
	}

	switch s {
	case LeastConnections:
		best := eligible[0]
		bestLoad := best.InFlight()
		for _, t := range eligible[1:] {
			if load := t.InFlight(); load < bestLoad {
				best, bestLoad = t, load
			}
		}
		return best

	case Random:
		return pickWeighted(eligible, rand.Intn(totalWeight(eligible)))

	case IPHash:
		h := fnv.New32a()
		h.Write([]byte(clientIP))
		return pickWeighted(eligible, int(h.Sum32())%totalWeight(eligible))

	default: // RoundRobin
		// Weight is expressed as repeated slots: A(1), B(2) rotates
		// through the sequence [A, B, B].
		slot := int(cursor.Add(1)-1) % totalWeight(eligible)
		return pickWeighted(eligible, slot)
	}
}

// pickWeighted maps an offset in [0, totalWeight) into the weighted ranges
// of the eligible targets, in declaration order.
func pickWeighted(eligible []*Target, offset int) *Target {
	for _, t := range eligible {
		if offset < t.Weight() {
			return t
		}
		offset -= t.Weight()
	}
	return eligible[len(eligible)-1]
}

func totalWeight(targets []*Target) int {
	total := 0
	for _, t := range targets {
		total += t.Weight()
	}
	return total
}
