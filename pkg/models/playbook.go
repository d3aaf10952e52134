package models

import (
	"fmt"
	"time"
)

// PlaybookCategory groups playbooks by the kind of issue they remediate
type PlaybookCategory string

const (
	CategoryCompliance     PlaybookCategory = "COMPLIANCE"
	CategorySustainability PlaybookCategory = "SUSTAINABILITY"
	CategorySecurity       PlaybookCategory = "SECURITY"
)

// ParseCategory converts a user supplied string to a PlaybookCategory
func ParseCategory(s string) (PlaybookCategory, error) {
	switch s {
	case "COMPLIANCE", "compliance":
		return CategoryCompliance, nil
	case "SUSTAINABILITY", "sustainability":
		return CategorySustainability, nil
	case "SECURITY", "security":
		return CategorySecurity, nil
	default:
		return "", fmt.Errorf("unknown playbook category: %s", s)
	}
}

// PlaybookStep is one ordered action of a playbook
type PlaybookStep struct {
	ID         string `json:"id" yaml:"id"`
	Action     string `json:"action" yaml:"action"`
	Command    string `json:"command,omitempty" yaml:"command,omitempty"`
	Validation string `json:"validation,omitempty" yaml:"validation,omitempty"`
	Rollback   string `json:"rollback,omitempty" yaml:"rollback,omitempty"`
}

// HasValidation reports whether the step defines a validation expression
func (s PlaybookStep) HasValidation() bool {
	return s.Validation != ""
}

// HasRollback reports whether the step defines a rollback expression
func (s PlaybookStep) HasRollback() bool {
	return s.Rollback != ""
}

// Playbook is an ordered remediation procedure. It is immutable once built;
// the executor only reads it.
type Playbook struct {
	ID             string           `json:"id" yaml:"id"`
	Name           string           `json:"name" yaml:"name"`
	Description    string           `json:"description" yaml:"description"`
	Category       PlaybookCategory `json:"category" yaml:"category"`
	Steps          []PlaybookStep   `json:"steps" yaml:"steps"`
	Preconditions  []string         `json:"preconditions" yaml:"preconditions"`
	Postconditions []string         `json:"postconditions" yaml:"postconditions"`
	CreatedAt      time.Time        `json:"created_at" yaml:"created_at"`
}

// ExecutionState is a state of the playbook executor state machine
type ExecutionState string

const (
	StatePending              ExecutionState = "PENDING"
	StatePreconditionsChecked ExecutionState = "PRECONDITIONS_CHECKED"
	StateExecuting            ExecutionState = "EXECUTING"
	StateStepValidated        ExecutionState = "STEP_VALIDATED"
	StateCompleted            ExecutionState = "COMPLETED"
	StateFailed               ExecutionState = "FAILED"
)

// IsTerminal reports whether no further transitions are possible
func (s ExecutionState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// StepOutcome is the result of one step within an execution
type StepOutcome string

const (
	OutcomeCompleted        StepOutcome = "completed"
	OutcomeExecutionFailed  StepOutcome = "execution_failed"
	OutcomeValidationFailed StepOutcome = "validation_failed"
	OutcomeRolledBack       StepOutcome = "rolled_back"
	OutcomeRollbackFailed   StepOutcome = "rollback_failed"
)

// StepResult records what happened to one step
type StepResult struct {
	StepID   string        `json:"step_id" yaml:"step_id"`
	Outcome  StepOutcome   `json:"outcome" yaml:"outcome"`
	Message  string        `json:"message,omitempty" yaml:"message,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// ExecutionReport is produced once per execution attempt
type ExecutionReport struct {
	PlaybookID     string         `json:"playbook_id" yaml:"playbook_id"`
	Success        bool           `json:"success" yaml:"success"`
	StepsCompleted int            `json:"steps_completed" yaml:"steps_completed"`
	Errors         []string       `json:"errors" yaml:"errors"`
	State          ExecutionState `json:"state" yaml:"state"`
	RolledBack     []string       `json:"rolled_back,omitempty" yaml:"rolled_back,omitempty"`
	Steps          []StepResult   `json:"step_results,omitempty" yaml:"step_results,omitempty"`
	StartedAt      time.Time      `json:"started_at" yaml:"started_at"`
	FinishedAt     time.Time      `json:"finished_at" yaml:"finished_at"`
}
