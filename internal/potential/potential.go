// Package potential defines the energy evaluator interface consumed by the
// optimization core, plus a built-in pairwise evaluator used by the service
// and the tests.
package potential

import (
	"context"
	"fmt"

	"github.com/molforge/RELAX/internal/geometry"
)

// Evaluator computes the energy and gradient of a geometry. Evaluations may
// be expensive and may fail; a failed evaluation is expected to fail again
// for the same geometry, so callers do not retry.
type Evaluator interface {
	Evaluate(ctx context.Context, g *geometry.Geometry) (energy float64, gradient []float64, err error)
}

// EvaluationError reports that the underlying energy calculation could not
// produce an energy and gradient for a geometry.
type EvaluationError struct {
	Message string
}

func (e *EvaluationError) Error() string {
	return e.Message
}

// Errorf creates an EvaluationError with a formatted message.
func Errorf(format string, args ...interface{}) *EvaluationError {
	return &EvaluationError{Message: fmt.Sprintf(format, args...)}
}

// Func adapts a plain function to the Evaluator interface.
type Func func(ctx context.Context, g *geometry.Geometry) (float64, []float64, error)

// Evaluate implements Evaluator.
func (f Func) Evaluate(ctx context.Context, g *geometry.Geometry) (float64, []float64, error) {
	return f(ctx, g)
}
