package upstream

import (
	"errors"
	"fmt"
)

// Common pool errors that can be checked with errors.Is().
var (
	// ErrNoHealthyTarget is returned by Select when every target of an
	// upstream is Unhealthy.
	ErrNoHealthyTarget = errors.New("no healthy target available")

	// ErrUnknownUpstream is returned when the named upstream does not
	// exist in the pool.
	ErrUnknownUpstream = errors.New("unknown upstream")

	// ErrUnknownTarget is returned when a management operation names a
	// target address that does not exist in the upstream.
	ErrUnknownTarget = errors.New("unknown target")
)

// NoHealthyTargetError is returned when an upstream has no target eligible
// for selection.
type NoHealthyTargetError struct {
	// Upstream is the name of the upstream that had no eligible target.
	Upstream string

	// Targets is the total number of targets in the upstream.
	Targets int
}

// Error implements the error interface.
func (e *NoHealthyTargetError) Error() string {
	return fmt.Sprintf("upstream %q has no healthy target (%d targets, all unhealthy)",
		e.Upstream, e.Targets)
}

// Is implements error matching for errors.Is().
func (e *NoHealthyTargetError) Is(target error) bool {
	return target == ErrNoHealthyTarget
}

// UnknownUpstreamError is returned when a selection or management operation
// names an upstream the pool does not know.
type UnknownUpstreamError struct {
	// Name is the requested upstream name.
	Name string
}

// Error implements the error interface.
func (e *UnknownUpstreamError) Error() string {
	return fmt.Sprintf("upstream %q not found", e.Name)
}

// Is implements error matching for errors.Is().
func (e *UnknownUpstreamError) Is(target error) bool {
	return target == ErrUnknownUpstream
}
