package playbook

import (
	"errors"
	"fmt"
)

// Playbook errors
var (
	// ErrProducerUnavailable is returned when remediation text could not be generated
	ErrProducerUnavailable = errors.New("remediation text producer unavailable")

	// ErrInvalidCategory is returned when a build request names an unknown category
	ErrInvalidCategory = errors.New("invalid playbook category")

	// ErrPreconditionFailed marks a precondition that did not hold
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrPostconditionFailed marks a postcondition that did not hold
	ErrPostconditionFailed = errors.New("postcondition failed")

	// ErrStepExecutionFailed marks a step whose command failed
	ErrStepExecutionFailed = errors.New("step execution failed")

	// ErrStepValidationFailed marks a step whose validation did not hold
	ErrStepValidationFailed = errors.New("step validation failed")

	// ErrRollbackFailed marks a rollback command that failed
	ErrRollbackFailed = errors.New("rollback failed")

	// ErrExecutionCancelled marks an execution stopped by the caller
	ErrExecutionCancelled = errors.New("execution cancelled")
)

// Phase is the part of a step an error occurred in
type Phase string

const (
	PhaseExecute  Phase = "execute"
	PhaseValidate Phase = "validate"
	PhaseRollback Phase = "rollback"
)

// StepError identifies the failing step and phase
type StepError struct {
	StepID string
	Phase  Phase
	Cause  error
}

// Error implements the error interface
func (e *StepError) Error() string {
	switch e.Phase {
	case PhaseValidate:
		if e.Cause != nil {
			return fmt.Sprintf("Step %s validation failed: %v", e.StepID, e.Cause)
		}
		return fmt.Sprintf("Step %s validation failed", e.StepID)
	case PhaseRollback:
		return fmt.Sprintf("Step %s rollback failed: %v", e.StepID, e.Cause)
	default:
		return fmt.Sprintf("Step %s failed: %v", e.StepID, e.Cause)
	}
}

// Unwrap returns the underlying error
func (e *StepError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel for the error's phase
func (e *StepError) Is(target error) bool {
	switch e.Phase {
	case PhaseExecute:
		return target == ErrStepExecutionFailed
	case PhaseValidate:
		return target == ErrStepValidationFailed
	case PhaseRollback:
		return target == ErrRollbackFailed
	}
	return false
}

// NewStepError creates a new step error
func NewStepError(stepID string, phase Phase, cause error) *StepError {
	return &StepError{StepID: stepID, Phase: phase, Cause: cause}
}

// PreconditionError names a precondition that did not hold. Cause is nil when the
// check evaluated to false and set when the check itself could not be evaluated.
type PreconditionError struct {
	Expression string
	Cause      error
}

// Error implements the error interface
func (e *PreconditionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("Precondition failed: %s (caused by: %v)", e.Expression, e.Cause)
	}
	return fmt.Sprintf("Precondition failed: %s", e.Expression)
}

// Unwrap returns the underlying error
func (e *PreconditionError) Unwrap() error {
	return e.Cause
}

// Is matches ErrPreconditionFailed
func (e *PreconditionError) Is(target error) bool {
	return target == ErrPreconditionFailed
}

// PostconditionError names a postcondition that did not hold after all steps ran
type PostconditionError struct {
	Expression string
	Cause      error
}

// Error implements the error interface
func (e *PostconditionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("Postcondition failed: %s (caused by: %v)", e.Expression, e.Cause)
	}
	return fmt.Sprintf("Postcondition failed: %s", e.Expression)
}

// Unwrap returns the underlying error
func (e *PostconditionError) Unwrap() error {
	return e.Cause
}

// Is matches ErrPostconditionFailed
func (e *PostconditionError) Is(target error) bool {
	return target == ErrPostconditionFailed
}

// CancelledError records where a cancelled execution stopped
type CancelledError struct {
	StepsCompleted int
	Cause          error
}

// Error implements the error interface
func (e *CancelledError) Error() string {
	return fmt.Sprintf("Execution cancelled after %d completed steps: %v", e.StepsCompleted, e.Cause)
}

// Unwrap returns the underlying error
func (e *CancelledError) Unwrap() error {
	return e.Cause
}

// Is matches ErrExecutionCancelled
func (e *CancelledError) Is(target error) bool {
	return target == ErrExecutionCancelled
}

// IsProducerError checks if an error came from the text producer
func IsProducerError(err error) bool {
	return errors.Is(err, ErrProducerUnavailable)
}

// IsRequestError checks if an error was caused by an invalid build request
func IsRequestError(err error) bool {
	return errors.Is(err, ErrInvalidCategory)
}
