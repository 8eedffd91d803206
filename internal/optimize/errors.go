package optimize

import (
	"errors"
	"fmt"
)

// Kind classifies a failure into the taxonomy the session reports to the host.
type Kind int

const (
	// KindUnknown is the zero value and never produced by this package.
	KindUnknown Kind = iota
	// KindConfiguration marks invalid session configuration: empty criteria,
	// malformed geometry, unknown backend or metric names. The session never
	// enters its running state.
	KindConfiguration
	// KindEvaluation marks a potential evaluator that could not produce an
	// energy and gradient. Terminal for the session; repeating the same
	// evaluation is expected to fail identically.
	KindEvaluation
	// KindStep marks an optimizer backend that could not propose a step.
	// Terminal for the session for the same reason.
	KindStep
)

// String returns the snake_case name used in results and logs.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindEvaluation:
		return "evaluation"
	case KindStep:
		return "step"
	default:
		return "unknown"
	}
}

// Error is an optimization failure carrying its classification and the
// operation that produced it. It wraps an underlying cause when one exists.
type Error struct {
	// Kind is the failure classification.
	Kind Kind
	// Message describes the failure.
	Message string
	// Op is the operation that failed, e.g. "propose_step".
	Op string
	// Err is the underlying error, if any.
	Err error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WithOp adds operation context to the error.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// NewConfigurationError creates a configuration error with a formatted message.
func NewConfigurationError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// NewEvaluationError wraps a potential-evaluator failure.
func NewEvaluationError(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindEvaluation, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewStepError creates a backend stepping failure. Backends must return one of
// these instead of silently handing back an unchanged or invalid geometry.
func NewStepError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindStep, Message: fmt.Sprintf(format, args...)}
}

// WrapStepError wraps an underlying numerical failure as a stepping failure.
func WrapStepError(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindStep, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the classification of err, or KindUnknown when err is not an
// optimization error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
