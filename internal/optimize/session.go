package optimize

import (
	"context"

	"github.com/molforge/RELAX/internal/geometry"
	"github.com/molforge/RELAX/internal/potential"
)

// SessionConfig configures one optimization session.
type SessionConfig struct {
	// Target selects minimization or transition-state search.
	Target Target
	// InitialGeometry is the starting structure.
	InitialGeometry *geometry.Geometry
	// Criteria are the convergence thresholds. At least one must be set.
	Criteria Criteria
	// MaxIterations bounds the iteration count. Iteration indices at or past
	// this value terminate the session. Negative values take the size-scaled
	// default.
	MaxIterations int
	// Evaluator computes energy and gradient per geometry.
	Evaluator potential.Evaluator
	// Backend proposes steps. Owned exclusively by this session.
	Backend Backend
}

// SessionResult is the final snapshot of a terminated session. It is created
// once at termination and not modified afterwards.
type SessionResult struct {
	// Target is the stationary point the session drove toward.
	Target Target
	// State is the terminal state.
	State State
	// Reason classifies the termination for the host.
	Reason TerminationReason
	// Converged is true only for ReasonConverged.
	Converged bool
	// NIterations is the number of completed iterations; History has exactly
	// this many records, indexed 0..NIterations-1.
	NIterations int
	// Final is the last evaluated record: the converging record, or the
	// freshest evaluated point when the budget ran out or the backend failed.
	// Nil only when the very first evaluation failed.
	Final *IterationRecord
	// History holds the completed iteration records in order.
	History []IterationRecord
	// Err carries the classified failure for backend and evaluator
	// terminations, nil otherwise.
	Err error
	// Mode is the backend's estimated reaction-coordinate mode, for
	// transition-state diagnostics, when the backend reports one.
	Mode []float64
}

// Session drives one optimizer backend against one potential evaluator until
// the convergence criteria are met or the run terminates otherwise. Sessions
// are single-use and not safe for concurrent use; independent sessions share
// no state and may run concurrently.
type Session struct {
	cfg     SessionConfig
	state   State
	history []IterationRecord
}

// NewSession validates the configuration and creates a session in the
// initialized state. Configuration problems are reported here, before any
// evaluation happens.
func NewSession(cfg SessionConfig) (*Session, error) {
	if err := cfg.Criteria.Validate(); err != nil {
		return nil, err
	}
	if cfg.InitialGeometry == nil || cfg.InitialGeometry.NAtoms() == 0 {
		return nil, NewConfigurationError("initial geometry is empty")
	}
	if cfg.Evaluator == nil {
		return nil, NewConfigurationError("no potential evaluator configured")
	}
	if cfg.Backend == nil {
		return nil, NewConfigurationError("no optimizer backend configured")
	}
	if cfg.MaxIterations < 0 {
		cfg.MaxIterations = DefaultMaxIterations(cfg.InitialGeometry.NAtoms())
	}
	return &Session{cfg: cfg, state: StateInitialized}, nil
}

// State returns the session's current state.
func (s *Session) State() State {
	return s.state
}

// History returns the completed iteration records so far. On a failed run the
// partial history is preserved for diagnostics.
func (s *Session) History() []IterationRecord {
	return s.history
}

// Run executes the iterate-evaluate-check loop until a terminal state is
// reached. Each terminal outcome yields a SessionResult and a nil error; the
// only non-nil error Run returns is context cancellation, checked
// cooperatively between iterations so a record's geometry and gradient are
// never left half-applied. Run may be called once.
func (s *Session) Run(ctx context.Context) (*SessionResult, error) {
	if s.state != StateInitialized {
		return nil, NewConfigurationError("session already ran (state %s)", s.state)
	}
	s.state = StateRunning

	geom := s.cfg.InitialGeometry
	var prev *IterationRecord

	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		energy, gradient, err := s.cfg.Evaluator.Evaluate(ctx, geom)
		if err != nil {
			s.state = StateEvaluatorFailed
			return s.finish(ReasonEvaluatorFailure, prev,
				NewEvaluationError(err, "evaluating iteration %d", i).WithOp("evaluate")), nil
		}

		rec, err := s.cfg.Criteria.Evaluate(prev, geom, energy, gradient)
		if err != nil {
			s.state = StateEvaluatorFailed
			return s.finish(ReasonEvaluatorFailure, prev,
				NewEvaluationError(err, "checking convergence at iteration %d", i)), nil
		}
		rec.Index = i

		// Convergence is checked before the next step is proposed: once the
		// criteria hold there is nothing to validate a further step against,
		// and the expensive backend call is saved.
		if rec.Converged {
			s.history = append(s.history, rec)
			s.state = StateConverged
			return s.finish(ReasonConverged, &rec, nil), nil
		}

		// The iteration at the budget boundary is evaluated but not stepped;
		// it is not part of the completed history.
		if i >= s.cfg.MaxIterations {
			s.state = StateMaxIterationsExceeded
			return s.finish(ReasonMaxIterations, &rec, nil), nil
		}

		next, err := s.cfg.Backend.ProposeStep(ctx, geom, energy, gradient, s.cfg.Target)
		if err != nil {
			s.state = StateBackendFailed
			if KindOf(err) == KindUnknown {
				err = WrapStepError(err, "proposing step at iteration %d", i)
			}
			return s.finish(ReasonBackendFailure, &rec, err), nil
		}
		if next == nil || !next.SameShape(geom) {
			s.state = StateBackendFailed
			return s.finish(ReasonBackendFailure, &rec,
				NewStepError("backend returned a malformed geometry at iteration %d", i)), nil
		}

		s.history = append(s.history, rec)
		prev = &s.history[len(s.history)-1]
		geom = next
	}
}

// finish builds the immutable result for a terminal state.
func (s *Session) finish(reason TerminationReason, final *IterationRecord, err error) *SessionResult {
	res := &SessionResult{
		Target:      s.cfg.Target,
		State:       s.state,
		Reason:      reason,
		Converged:   reason == ReasonConverged,
		NIterations: len(s.history),
		Final:       final,
		History:     s.history,
		Err:         err,
	}
	if mr, ok := s.cfg.Backend.(ModeReporter); ok && s.cfg.Target == TargetTransitionState {
		res.Mode = mr.Mode()
	}
	return res
}
