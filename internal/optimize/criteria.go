package optimize

import (
	"math"

	"github.com/molforge/RELAX/internal/geometry"
)

// Criteria holds the convergence thresholds for one session. A zero or
// negative field disables that metric: it neither passes nor fails, it simply
// has no vote in the combined verdict. Forces are in energy/length units of
// the potential, displacements in length units, energy change in energy units.
type Criteria struct {
	MaxForce        float64 `json:"max_force,omitempty"`
	RMSForce        float64 `json:"rms_force,omitempty"`
	MaxDisplacement float64 `json:"max_displacement,omitempty"`
	RMSDisplacement float64 `json:"rms_displacement,omitempty"`
	EnergyChange    float64 `json:"energy_change,omitempty"`
}

// threshold returns the configured tolerance for a metric and whether it is
// enabled.
func (c Criteria) threshold(m Metric) (float64, bool) {
	var v float64
	switch m {
	case MetricMaxForce:
		v = c.MaxForce
	case MetricRMSForce:
		v = c.RMSForce
	case MetricMaxDisplacement:
		v = c.MaxDisplacement
	case MetricRMSDisplacement:
		v = c.RMSDisplacement
	case MetricEnergyChange:
		v = c.EnergyChange
	}
	return v, v > 0
}

// Enabled returns the metrics with a configured threshold.
func (c Criteria) Enabled() []Metric {
	var out []Metric
	for _, m := range Metrics {
		if _, ok := c.threshold(m); ok {
			out = append(out, m)
		}
	}
	return out
}

// Validate rejects criteria that can never converge. A session with every
// threshold unset is a configuration error, reported before the loop starts
// rather than discovered after exhausting the iteration budget.
func (c Criteria) Validate() error {
	if len(c.Enabled()) == 0 {
		return NewConfigurationError("no convergence criteria configured")
	}
	return nil
}

// Override applies host-supplied threshold overrides by metric name.
// Unspecified metrics keep their current values; an unknown name is a
// configuration error. A non-positive override disables the metric.
func (c Criteria) Override(overrides map[string]float64) (Criteria, error) {
	for name, v := range overrides {
		switch Metric(name) {
		case MetricMaxForce:
			c.MaxForce = v
		case MetricRMSForce:
			c.RMSForce = v
		case MetricMaxDisplacement:
			c.MaxDisplacement = v
		case MetricRMSDisplacement:
			c.RMSDisplacement = v
		case MetricEnergyChange:
			c.EnergyChange = v
		default:
			return c, NewConfigurationError("unknown convergence metric %q", name)
		}
	}
	return c, nil
}

// Evaluate builds the iteration record for the current point. prev is the
// previous iteration's record, or nil on iteration 0, in which case the
// displacement and energy-change metrics are skipped rather than failed.
// Evaluate is a pure function of its inputs: identical inputs yield identical
// records.
func (c Criteria) Evaluate(prev *IterationRecord, geom *geometry.Geometry, energy float64, gradient []float64) (IterationRecord, error) {
	if len(gradient) != 3*geom.NAtoms() {
		return IterationRecord{}, NewConfigurationError(
			"gradient length %d does not match %d atoms", len(gradient), geom.NAtoms())
	}

	rec := IterationRecord{
		Geometry: geom,
		Energy:   energy,
		Gradient: append([]float64(nil), gradient...),
		Metrics:  make(map[Metric]MetricResult, len(Metrics)),
	}

	rec.setMetric(c, MetricMaxForce, geometry.MaxAbs(gradient), true)
	rec.setMetric(c, MetricRMSForce, geometry.RMS(gradient), true)

	if prev != nil {
		disp, err := geometry.Displacement(geom, prev.Geometry)
		if err != nil {
			return IterationRecord{}, NewConfigurationError("displacement: %v", err)
		}
		rec.setMetric(c, MetricMaxDisplacement, geometry.MaxAbs(disp), true)
		rec.setMetric(c, MetricRMSDisplacement, geometry.RMS(disp), true)
		rec.setMetric(c, MetricEnergyChange, math.Abs(energy-prev.Energy), true)
	} else {
		rec.setMetric(c, MetricMaxDisplacement, 0, false)
		rec.setMetric(c, MetricRMSDisplacement, 0, false)
		rec.setMetric(c, MetricEnergyChange, 0, false)
	}

	// All voting metrics must pass, and convergence cannot be declared with
	// zero votes.
	votes := 0
	pass := true
	for _, m := range Metrics {
		r := rec.Metrics[m]
		if r.Votes() {
			votes++
			pass = pass && r.Pass
		}
	}
	rec.Converged = votes > 0 && pass
	return rec, nil
}

func (r *IterationRecord) setMetric(c Criteria, m Metric, value float64, applicable bool) {
	threshold, enabled := c.threshold(m)
	r.Metrics[m] = MetricResult{
		Value:      value,
		Threshold:  threshold,
		Enabled:    enabled,
		Applicable: applicable,
		Pass:       enabled && applicable && value <= threshold,
	}
}
