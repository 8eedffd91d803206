// Package quasinewton implements a quasi-Newton optimizer backend. It keeps
// an approximate Hessian updated from successive gradients and steps through
// its eigenbasis: downhill along every mode for a minimization, uphill along
// the softest mode for a transition-state search (eigenvector following).
package quasinewton

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/molforge/RELAX/internal/geometry"
	"github.com/molforge/RELAX/internal/optimize"
)

// UpdateRule names the Hessian update algorithm.
type UpdateRule string

const (
	UpdateBFGS   UpdateRule = "bfgs"
	UpdateMS     UpdateRule = "ms"
	UpdatePowell UpdateRule = "powell"
	UpdateNone   UpdateRule = "none"
)

// ParseUpdateRule parses a Hessian update rule name from host input.
func ParseUpdateRule(s string) (UpdateRule, error) {
	switch UpdateRule(s) {
	case UpdateBFGS, "":
		return UpdateBFGS, nil
	case UpdateMS, UpdatePowell, UpdateNone:
		return UpdateRule(s), nil
	default:
		return "", optimize.NewConfigurationError("unknown hessian update rule %q", s)
	}
}

const (
	// initialCurvature seeds the diagonal Hessian guess.
	initialCurvature = 1.0
	// eigenFloor shifts small and negative eigenvalues before inverting so
	// the Newton step stays bounded.
	eigenFloor = 1e-3
	// skipThreshold guards the update denominators.
	skipThreshold = 1e-10
)

// Backend is a quasi-Newton stepper. Its Hessian estimate is an owned mutable
// resource exclusive to one session; create a fresh Backend per session.
type Backend struct {
	update UpdateRule
	trust  float64

	n        int
	hessian  *mat.SymDense
	prevX    []float64
	prevGrad []float64
	mode     []float64
}

// Option configures a Backend.
type Option func(*Backend)

// WithUpdateRule selects the Hessian update algorithm.
func WithUpdateRule(rule UpdateRule) Option {
	return func(b *Backend) { b.update = rule }
}

// WithTrustRadius caps the norm of one step.
func WithTrustRadius(r float64) Option {
	return func(b *Backend) { b.trust = r }
}

// New creates a quasi-Newton backend with a BFGS update and a 0.3 trust
// radius unless configured otherwise.
func New(opts ...Option) *Backend {
	b := &Backend{update: UpdateBFGS, trust: 0.3}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Mode returns the current estimate of the reaction-coordinate mode: the
// eigenvector of the approximate Hessian with the lowest eigenvalue. Nil
// before the first step. Implements optimize.ModeReporter.
func (b *Backend) Mode() []float64 {
	if b.mode == nil {
		return nil
	}
	return append([]float64(nil), b.mode...)
}

// ProposeStep implements optimize.Backend.
func (b *Backend) ProposeStep(ctx context.Context, geom *geometry.Geometry, energy float64, gradient []float64, target optimize.Target) (*geometry.Geometry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := len(gradient)
	if b.hessian == nil {
		b.n = n
		b.hessian = mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			b.hessian.SetSym(i, i, initialCurvature)
		}
	}
	if n != b.n {
		return nil, optimize.NewStepError("gradient dimension changed from %d to %d mid-session", b.n, n)
	}

	if b.prevX != nil {
		b.updateHessian(geom.Coords, gradient)
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(b.hessian, true); !ok {
		return nil, optimize.NewStepError("hessian eigendecomposition failed")
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// gonum orders eigenvalues ascending; column 0 is the softest mode.
	b.mode = mat.Col(nil, 0, &vectors)

	delta := make([]float64, n)
	scratch := make([]float64, n)
	for k := 0; k < n; k++ {
		vk := mat.Col(scratch, k, &vectors)
		gk := floats.Dot(vk, gradient)

		var step float64
		if target == optimize.TargetTransitionState && k == 0 {
			// Maximize along the softest mode, minimize along the rest.
			step = gk / math.Max(math.Abs(values[k]), eigenFloor)
		} else {
			step = -gk / math.Max(values[k], eigenFloor)
		}
		floats.AddScaled(delta, step, vk)
	}

	if norm := floats.Norm(delta, 2); norm > b.trust {
		floats.Scale(b.trust/norm, delta)
	}
	for _, d := range delta {
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return nil, optimize.NewStepError("non-finite quasi-newton step")
		}
	}

	next, err := geom.Displace(delta)
	if err != nil {
		return nil, optimize.WrapStepError(err, "applying quasi-newton step")
	}

	b.prevX = append(b.prevX[:0], geom.Coords...)
	b.prevGrad = append(b.prevGrad[:0], gradient...)
	return next, nil
}

// updateHessian folds the latest displacement and gradient change into the
// Hessian estimate. Updates with degenerate denominators are skipped, which
// keeps the estimate symmetric positive where the data says nothing.
func (b *Backend) updateHessian(x, grad []float64) {
	n := b.n
	s := make([]float64, n)
	y := make([]float64, n)
	floats.SubTo(s, x, b.prevX)
	floats.SubTo(y, grad, b.prevGrad)

	ss := floats.Dot(s, s)
	if ss < skipThreshold {
		return
	}

	bs := make([]float64, n)
	for i := 0; i < n; i++ {
		bs[i] = 0
		for j := 0; j < n; j++ {
			bs[i] += b.hessian.At(i, j) * s[j]
		}
	}

	switch b.update {
	case UpdateBFGS:
		ys := floats.Dot(y, s)
		sbs := floats.Dot(s, bs)
		if math.Abs(ys) < skipThreshold || math.Abs(sbs) < skipThreshold {
			return
		}
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				v := b.hessian.At(i, j) + y[i]*y[j]/ys - bs[i]*bs[j]/sbs
				b.hessian.SetSym(i, j, v)
			}
		}
	case UpdateMS:
		// Murtagh-Sargent (SR1).
		r := make([]float64, n)
		floats.SubTo(r, y, bs)
		rs := floats.Dot(r, s)
		if math.Abs(rs) < skipThreshold*math.Sqrt(ss)*floats.Norm(r, 2)+skipThreshold {
			return
		}
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				b.hessian.SetSym(i, j, b.hessian.At(i, j)+r[i]*r[j]/rs)
			}
		}
	case UpdatePowell:
		// Powell symmetric Broyden.
		r := make([]float64, n)
		floats.SubTo(r, y, bs)
		sr := floats.Dot(s, r)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				v := b.hessian.At(i, j) + (r[i]*s[j]+s[i]*r[j])/ss - sr*s[i]*s[j]/(ss*ss)
				b.hessian.SetSym(i, j, v)
			}
		}
	case UpdateNone:
	}
}
