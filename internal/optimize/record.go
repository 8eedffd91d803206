package optimize

import (
	"fmt"

	"github.com/molforge/RELAX/internal/geometry"
)

// Target selects which stationary point the optimization drives toward.
type Target int

const (
	// TargetMinimum drives the geometry to a local energy minimum.
	TargetMinimum Target = iota
	// TargetTransitionState drives the geometry to a first-order saddle point
	// by stepping along the softest curvature mode rather than purely downhill.
	TargetTransitionState
)

// String returns the snake_case name used on the wire.
func (t Target) String() string {
	if t == TargetTransitionState {
		return "transition_state"
	}
	return "minimum"
}

// ParseTarget parses a target name from host input.
func ParseTarget(s string) (Target, error) {
	switch s {
	case "minimum", "":
		return TargetMinimum, nil
	case "transition_state":
		return TargetTransitionState, nil
	default:
		return 0, NewConfigurationError("unknown optimization target %q", s)
	}
}

// State is the lifecycle state of an optimization session.
type State int

const (
	StateInitialized State = iota
	StateRunning
	StateConverged
	StateMaxIterationsExceeded
	StateBackendFailed
	StateEvaluatorFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateConverged:
		return "converged"
	case StateMaxIterationsExceeded:
		return "max_iterations_exceeded"
	case StateBackendFailed:
		return "backend_failed"
	case StateEvaluatorFailed:
		return "evaluator_failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether the session has finished in this state.
func (s State) Terminal() bool {
	switch s {
	case StateConverged, StateMaxIterationsExceeded, StateBackendFailed, StateEvaluatorFailed:
		return true
	}
	return false
}

// TerminationReason classifies how a session ended, in the host's vocabulary.
type TerminationReason int

const (
	ReasonConverged TerminationReason = iota
	ReasonMaxIterations
	ReasonBackendFailure
	ReasonEvaluatorFailure
)

// String returns the snake_case reason published to the host.
func (r TerminationReason) String() string {
	switch r {
	case ReasonConverged:
		return "converged"
	case ReasonMaxIterations:
		return "max_iterations"
	case ReasonBackendFailure:
		return "backend_failure"
	case ReasonEvaluatorFailure:
		return "evaluator_failure"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Metric names one convergence criterion.
type Metric string

const (
	MetricMaxForce        Metric = "max_force"
	MetricRMSForce        Metric = "rms_force"
	MetricMaxDisplacement Metric = "max_displacement"
	MetricRMSDisplacement Metric = "rms_displacement"
	MetricEnergyChange    Metric = "energy_change"
)

// Metrics lists every convergence metric in reporting order.
var Metrics = []Metric{
	MetricMaxForce,
	MetricRMSForce,
	MetricMaxDisplacement,
	MetricRMSDisplacement,
	MetricEnergyChange,
}

// MetricResult is the evaluation of one metric on one iteration.
type MetricResult struct {
	// Value is the measured quantity. Meaningless when Applicable is false.
	Value float64
	// Threshold is the configured tolerance. Meaningless when Enabled is false.
	Threshold float64
	// Enabled reports whether the criteria configure a threshold for this metric.
	Enabled bool
	// Applicable reports whether the metric could be computed on this
	// iteration. Displacements and the energy change need a previous record.
	Applicable bool
	// Pass is Value <= Threshold. Only meaningful when Enabled and Applicable.
	Pass bool
}

// Votes reports whether this metric participates in the convergence verdict.
func (m MetricResult) Votes() bool {
	return m.Enabled && m.Applicable
}

// IterationRecord captures the evaluated state of one optimization iteration.
// Records are append-only; the session owns the full ordered history.
type IterationRecord struct {
	// Index is the zero-based iteration number.
	Index int
	// Geometry is the structure this record was evaluated at.
	Geometry *geometry.Geometry
	// Energy is the potential energy at Geometry.
	Energy float64
	// Gradient is the flattened 3N energy gradient at Geometry.
	Gradient []float64
	// Metrics holds the per-criterion evaluation.
	Metrics map[Metric]MetricResult
	// Converged is true iff every voting metric passed and at least one voted.
	Converged bool
}
