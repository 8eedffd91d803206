package optimize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molforge/RELAX/internal/geometry"
)

func mustGeometry(t *testing.T, symbols []string, coords []float64) *geometry.Geometry {
	t.Helper()
	g, err := geometry.New(symbols, coords)
	require.NoError(t, err)
	return g
}

func TestCriteriaValidate(t *testing.T) {
	assert.Error(t, Criteria{}.Validate(), "all thresholds unset can never converge")
	assert.NoError(t, Criteria{MaxForce: 1e-4}.Validate())
	assert.Error(t, Criteria{MaxForce: -1}.Validate(), "negative threshold is disabled")
}

func TestCriteriaOverride(t *testing.T) {
	base := DefaultCriteria(TargetMinimum)

	c, err := base.Override(map[string]float64{"max_force": 1e-5, "rms_force": 5e-6})
	require.NoError(t, err)
	assert.Equal(t, 1e-5, c.MaxForce)
	assert.Equal(t, 5e-6, c.RMSForce)
	assert.Equal(t, base.MaxDisplacement, c.MaxDisplacement, "unspecified metrics inherit defaults")

	_, err = base.Override(map[string]float64{"max_torque": 1.0})
	assert.Error(t, err)
	assert.Equal(t, KindConfiguration, KindOf(err))

	// Overriding with a non-positive value disables the metric.
	c, err = base.Override(map[string]float64{"energy_change": 0})
	require.NoError(t, err)
	assert.NotContains(t, c.Enabled(), MetricEnergyChange)
}

func TestEvaluateFirstIterationSkipsHistoryMetrics(t *testing.T) {
	// Thresholds for the history-dependent metrics are configured, but on
	// iteration 0 those metrics have no vote and must not block convergence.
	c := Criteria{
		MaxForce:        0.01,
		MaxDisplacement: 1e-6,
		EnergyChange:    1e-12,
	}
	g := mustGeometry(t, []string{"H", "H"}, []float64{0, 0, 0, 0, 0, 1})

	rec, err := c.Evaluate(nil, g, -1.0, []float64{0, 0, 0.005, 0, 0, -0.005})
	require.NoError(t, err)

	assert.False(t, rec.Metrics[MetricMaxDisplacement].Applicable)
	assert.False(t, rec.Metrics[MetricRMSDisplacement].Applicable)
	assert.False(t, rec.Metrics[MetricEnergyChange].Applicable)
	assert.True(t, rec.Metrics[MetricMaxForce].Pass)
	assert.True(t, rec.Converged, "only the applicable configured metric votes")
}

func TestEvaluateMaxForceOnly(t *testing.T) {
	c := Criteria{MaxForce: 0.01}
	g := mustGeometry(t, []string{"H", "H"}, []float64{0, 0, 0, 0, 0, 1})

	tests := []struct {
		name      string
		gradient  []float64
		converged bool
	}{
		{"below threshold", []float64{0, 0, 0.005, 0, 0, -0.005}, true},
		{"at threshold", []float64{0, 0, 0.01, 0, 0, -0.01}, true},
		{"above threshold", []float64{0, 0, 0.02, 0, 0, -0.02}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := c.Evaluate(nil, g, 0, tt.gradient)
			require.NoError(t, err)
			assert.Equal(t, tt.converged, rec.Converged)
		})
	}
}

func TestEvaluateAllMustPass(t *testing.T) {
	c := Criteria{MaxForce: 1.0, EnergyChange: 1e-8}
	g0 := mustGeometry(t, []string{"Ar"}, []float64{0, 0, 0})
	g1 := mustGeometry(t, []string{"Ar"}, []float64{0, 0, 0.1})

	prev, err := c.Evaluate(nil, g0, -2.0, []float64{0, 0, 0.5})
	require.NoError(t, err)
	prev.Index = 0

	// Forces pass but the energy is still changing: not converged. A stalled
	// optimizer with exactly zero energy change and large forces is the dual
	// case, also governed strictly by the AND rule.
	rec, err := c.Evaluate(&prev, g1, -2.5, []float64{0, 0, 0.5})
	require.NoError(t, err)
	assert.True(t, rec.Metrics[MetricMaxForce].Pass)
	assert.False(t, rec.Metrics[MetricEnergyChange].Pass)
	assert.False(t, rec.Converged)

	// Stalled energy, unconverged forces.
	c2 := Criteria{MaxForce: 0.01, EnergyChange: 1e-8}
	stalled, err := c2.Evaluate(&prev, g1, -2.0, []float64{0, 0, 0.5})
	require.NoError(t, err)
	assert.True(t, stalled.Metrics[MetricEnergyChange].Pass)
	assert.False(t, stalled.Converged)
}

func TestEvaluateDisplacementMetrics(t *testing.T) {
	c := Criteria{MaxDisplacement: 0.2, RMSDisplacement: 0.2, MaxForce: 10}
	g0 := mustGeometry(t, []string{"H"}, []float64{0, 0, 0})
	g1 := mustGeometry(t, []string{"H"}, []float64{0.1, 0, 0})

	prev, err := c.Evaluate(nil, g0, 0, []float64{1, 0, 0})
	require.NoError(t, err)

	rec, err := c.Evaluate(&prev, g1, 0, []float64{1, 0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.1, rec.Metrics[MetricMaxDisplacement].Value, 1e-12)
	assert.True(t, rec.Metrics[MetricMaxDisplacement].Pass)
	assert.True(t, rec.Metrics[MetricRMSDisplacement].Pass)
}

func TestEvaluateDeterministic(t *testing.T) {
	c := Criteria{MaxForce: 0.01, EnergyChange: 1e-6}
	g := mustGeometry(t, []string{"O"}, []float64{0, 0, 0})
	grad := []float64{0.002, -0.001, 0}

	a, err := c.Evaluate(nil, g, -5.0, grad)
	require.NoError(t, err)
	b, err := c.Evaluate(nil, g, -5.0, grad)
	require.NoError(t, err)
	assert.Equal(t, a, b, "identical inputs must yield identical records")
}

func TestEvaluateGradientShapeMismatch(t *testing.T) {
	c := Criteria{MaxForce: 0.01}
	g := mustGeometry(t, []string{"H", "H"}, []float64{0, 0, 0, 0, 0, 1})

	_, err := c.Evaluate(nil, g, 0, []float64{1, 2, 3})
	require.Error(t, err)
	assert.Equal(t, KindConfiguration, KindOf(err))
}

func TestPresets(t *testing.T) {
	for _, name := range []string{
		"QCHEM", "MOLPRO", "GAU", "GAU_LOOSE", "GAU_TIGHT",
		"GAU_VERYTIGHT", "TURBOMOLE", "CFOUR", "NWCHEM_LOOSE",
	} {
		c, ok := Preset(name)
		require.True(t, ok, name)
		assert.NoError(t, c.Validate(), name)
	}

	_, ok := Preset("SPARTAN")
	assert.False(t, ok)

	assert.Len(t, PresetNames(), 9)
}

func TestDefaultCriteriaByTarget(t *testing.T) {
	min := DefaultCriteria(TargetMinimum)
	ts := DefaultCriteria(TargetTransitionState)

	assert.Less(t, ts.MaxForce, min.MaxForce, "transition-state force tolerance is tighter")
	assert.Greater(t, ts.MaxDisplacement, min.MaxDisplacement, "transition-state displacement tolerance is looser")
}

func TestDefaultMaxIterations(t *testing.T) {
	assert.Equal(t, 36, DefaultMaxIterations(1))
	assert.Equal(t, 90, DefaultMaxIterations(10))
	assert.Equal(t, 200, DefaultMaxIterations(1000), "capped for large systems")
}
