// Package steepest implements a simple adaptive steepest-descent backend.
// It follows the negative gradient with a step size that grows while the
// energy keeps dropping and halves when a step overshoots. It carries no
// curvature information and therefore only supports minimization.
package steepest

import (
	"context"
	"math"

	"github.com/molforge/RELAX/internal/geometry"
	"github.com/molforge/RELAX/internal/optimize"
)

const (
	defaultStep = 0.5
	growFactor  = 1.1
	// A step size this small means the line search has collapsed.
	minStep = 1e-10
)

// Backend is an adaptive steepest-descent stepper. State is exclusive to one
// session; create a fresh Backend per session.
type Backend struct {
	step       float64
	maxStep    float64
	lastEnergy float64
	primed     bool
}

// Option configures a Backend.
type Option func(*Backend)

// WithInitialStep sets the initial step-size scaling.
func WithInitialStep(step float64) Option {
	return func(b *Backend) { b.step = step }
}

// WithMaxStep caps the per-coordinate displacement of one step.
func WithMaxStep(max float64) Option {
	return func(b *Backend) { b.maxStep = max }
}

// New creates a steepest-descent backend.
func New(opts ...Option) *Backend {
	b := &Backend{step: defaultStep, maxStep: 0.3}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ProposeStep implements optimize.Backend.
func (b *Backend) ProposeStep(ctx context.Context, geom *geometry.Geometry, energy float64, gradient []float64, target optimize.Target) (*geometry.Geometry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if target == optimize.TargetTransitionState {
		return nil, optimize.NewStepError(
			"steepest descent carries no curvature information and cannot locate transition states")
	}

	if b.primed {
		if energy > b.lastEnergy {
			b.step *= 0.5
		} else {
			b.step *= growFactor
		}
	}
	b.lastEnergy = energy
	b.primed = true

	if b.step < minStep {
		return nil, optimize.NewStepError("step size collapsed to %.2e", b.step)
	}

	delta := make([]float64, len(gradient))
	for i, g := range gradient {
		d := -b.step * g
		// Clamp per coordinate so one steep component cannot throw the
		// geometry into an unphysical region.
		if d > b.maxStep {
			d = b.maxStep
		} else if d < -b.maxStep {
			d = -b.maxStep
		}
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return nil, optimize.NewStepError("non-finite step component from gradient %v", gradient[i])
		}
		delta[i] = d
	}

	next, err := geom.Displace(delta)
	if err != nil {
		return nil, optimize.WrapStepError(err, "applying steepest-descent step")
	}
	return next, nil
}
