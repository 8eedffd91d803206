package quasinewton

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molforge/RELAX/internal/geometry"
	"github.com/molforge/RELAX/internal/optimize"
	"github.com/molforge/RELAX/internal/potential"
)

func singleAtom(t *testing.T, x, y, z float64) *geometry.Geometry {
	t.Helper()
	g, err := geometry.New([]string{"H"}, []float64{x, y, z})
	require.NoError(t, err)
	return g
}

// bowl is a separable quadratic with curvatures kx, ky, kz and minimum at the
// origin. Negative curvatures turn the corresponding direction into a ridge.
func bowl(kx, ky, kz float64) potential.Func {
	return func(ctx context.Context, g *geometry.Geometry) (float64, []float64, error) {
		x, y, z := g.Coords[0], g.Coords[1], g.Coords[2]
		e := 0.5 * (kx*x*x + ky*y*y + kz*z*z)
		return e, []float64{kx * x, ky * y, kz * z}, nil
	}
}

func TestParseUpdateRule(t *testing.T) {
	for _, s := range []string{"", "bfgs", "ms", "powell", "none"} {
		_, err := ParseUpdateRule(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseUpdateRule("dfp")
	assert.Equal(t, optimize.KindConfiguration, optimize.KindOf(err))
}

func TestMinimizationStepsDownhill(t *testing.T) {
	b := New()
	g := singleAtom(t, 1.0, -2.0, 0.5)
	grad := []float64{1.0, -2.0, 0.5}

	next, err := b.ProposeStep(context.Background(), g, 2.625, grad, optimize.TargetMinimum)
	require.NoError(t, err)

	// With a unit initial Hessian the step is the clamped negative gradient.
	for i := range next.Coords {
		if grad[i] > 0 {
			assert.Less(t, next.Coords[i], g.Coords[i])
		} else {
			assert.Greater(t, next.Coords[i], g.Coords[i])
		}
	}
}

func TestMinimizesQuadraticBowl(t *testing.T) {
	for _, rule := range []UpdateRule{UpdateBFGS, UpdateMS, UpdatePowell} {
		t.Run(string(rule), func(t *testing.T) {
			s, err := optimize.NewSession(optimize.SessionConfig{
				InitialGeometry: singleAtom(t, 0.8, -0.6, 0.4),
				Criteria:        optimize.Criteria{MaxForce: 1e-6},
				MaxIterations:   200,
				Evaluator:       bowl(1.0, 2.0, 0.5),
				Backend:         New(WithUpdateRule(rule)),
			})
			require.NoError(t, err)

			res, err := s.Run(context.Background())
			require.NoError(t, err)
			require.True(t, res.Converged, "rule %s: %s", rule, res.Reason)
			for _, c := range res.Final.Geometry.Coords {
				assert.InDelta(t, 0, c, 1e-5)
			}
		})
	}
}

func TestTransitionStateClimbsSoftestMode(t *testing.T) {
	// Saddle at the origin: negative curvature along x, positive elsewhere.
	// Starting off-saddle on the downhill side of x, the search must climb
	// back toward x=0 instead of sliding away.
	s, err := optimize.NewSession(optimize.SessionConfig{
		Target:          optimize.TargetTransitionState,
		InitialGeometry: singleAtom(t, 0.3, 0.5, -0.4),
		Criteria:        optimize.Criteria{MaxForce: 1e-6},
		MaxIterations:   300,
		Evaluator:       bowl(-1.0, 2.0, 1.5),
		Backend:         New(WithUpdateRule(UpdatePowell)),
	})
	require.NoError(t, err)

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	require.True(t, res.Converged, "reason: %s", res.Reason)
	for _, c := range res.Final.Geometry.Coords {
		assert.InDelta(t, 0, c, 1e-4)
	}
}

func TestModeReported(t *testing.T) {
	b := New()
	assert.Nil(t, b.Mode(), "no mode before the first step")

	g := singleAtom(t, 0.3, 0.5, -0.4)
	_, err := b.ProposeStep(context.Background(), g, 0, []float64{-0.3, 1.0, -0.6}, optimize.TargetTransitionState)
	require.NoError(t, err)

	mode := b.Mode()
	require.Len(t, mode, 3)
	assert.InDelta(t, 1.0, math.Hypot(math.Hypot(mode[0], mode[1]), mode[2]), 1e-9, "mode is a unit vector")
}

func TestDimensionChangeRejected(t *testing.T) {
	b := New()
	g := singleAtom(t, 0, 0, 1)
	_, err := b.ProposeStep(context.Background(), g, 0, []float64{0, 0, 0.1}, optimize.TargetMinimum)
	require.NoError(t, err)

	g2, err := geometry.New([]string{"H", "H"}, []float64{0, 0, 0, 0, 0, 1})
	require.NoError(t, err)
	_, err = b.ProposeStep(context.Background(), g2, 0, make([]float64, 6), optimize.TargetMinimum)
	assert.Equal(t, optimize.KindStep, optimize.KindOf(err))
}

func TestTrustRadiusClampsStep(t *testing.T) {
	b := New(WithTrustRadius(0.1))
	g := singleAtom(t, 0, 0, 0)
	grad := []float64{100, 0, 0}

	next, err := b.ProposeStep(context.Background(), g, 0, grad, optimize.TargetMinimum)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, math.Abs(next.Coords[0]), 1e-9)
}
