package optimize

import (
	"context"

	"github.com/molforge/RELAX/internal/geometry"
)

// Backend proposes optimization steps. Implementations wrap one numerical
// algorithm and may keep internal state across calls (an approximate Hessian,
// a step-size history); that state lives for exactly one session and is never
// shared.
type Backend interface {
	// ProposeStep returns the next geometry given the current point and its
	// gradient. The target selects the stepping policy: downhill for a
	// minimum, along the softest curvature mode for a transition state.
	// A failure must be signalled with a step-classified error, never by
	// returning an unchanged or invalid geometry.
	ProposeStep(ctx context.Context, geom *geometry.Geometry, energy float64, gradient []float64, target Target) (*geometry.Geometry, error)
}

// ModeReporter is implemented by backends that track an estimated
// reaction-coordinate mode during a transition-state search. The returned
// vector is diagnostic only.
type ModeReporter interface {
	Mode() []float64
}
