package playbook

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
)

// CommandRunner performs the side effect of a step command or rollback
type CommandRunner interface {
	Run(ctx context.Context, command string) error
}

// ConditionChecker evaluates a precondition, postcondition or validation expression
// against live state. A false result with a nil error means the condition does not hold.
type ConditionChecker interface {
	Check(ctx context.Context, expression string) (bool, error)
}

// RollbackMode selects which rollbacks run when a step fails
type RollbackMode string

const (
	// RollbackLocal runs only the failing step's own rollback. Earlier steps stay applied.
	RollbackLocal RollbackMode = "local"

	// RollbackCompensate also runs the rollbacks of completed steps in reverse order
	RollbackCompensate RollbackMode = "compensate"
)

// ParseRollbackMode converts a configuration value to a RollbackMode
func ParseRollbackMode(s string) (RollbackMode, error) {
	switch RollbackMode(s) {
	case RollbackLocal, "":
		return RollbackLocal, nil
	case RollbackCompensate:
		return RollbackCompensate, nil
	}
	return "", fmt.Errorf("unknown rollback mode: %s", s)
}

// Executor runs playbooks. It holds only immutable dependencies, so one Executor
// may run many playbooks concurrently.
type Executor struct {
	runner     CommandRunner
	checker    ConditionChecker
	logger     *logrus.Logger
	now        func() time.Time
	timeout    time.Duration
	mode       RollbackMode
	concurrent bool
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithCallTimeout bounds every external call. Zero disables the bound.
func WithCallTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = d
	}
}

// WithRollbackMode selects local or compensating rollback
func WithRollbackMode(mode RollbackMode) ExecutorOption {
	return func(e *Executor) {
		if mode != "" {
			e.mode = mode
		}
	}
}

// WithConcurrentPreconditions evaluates all preconditions in parallel. The reported
// failure is still the lowest-index one.
func WithConcurrentPreconditions(enabled bool) ExecutorOption {
	return func(e *Executor) {
		e.concurrent = enabled
	}
}

// WithExecutorLogger sets the logger
func WithExecutorLogger(logger *logrus.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithExecutorClock overrides the timestamp source (tests).
func WithExecutorClock(clock func() time.Time) ExecutorOption {
	return func(e *Executor) {
		if clock != nil {
			e.now = clock
		}
	}
}

// NewExecutor creates a new Executor
func NewExecutor(runner CommandRunner, checker ConditionChecker, opts ...ExecutorOption) *Executor {
	e := &Executor{
		runner:  runner,
		checker: checker,
		logger:  logrus.New(),
		now:     time.Now,
		mode:    RollbackLocal,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run holds the mutable state of a single execution
type run struct {
	pb     *models.Playbook
	report models.ExecutionReport
	log    *logrus.Entry
}

func (r *run) fail(err error) {
	r.report.Errors = append(r.report.Errors, err.Error())
}

func (r *run) transition(state models.ExecutionState) {
	r.log.WithField("state", state).Debug("Executor state transition")
	r.report.State = state
}

// Execute runs the playbook and always returns a report. The playbook is never modified.
func (e *Executor) Execute(ctx context.Context, pb *models.Playbook) models.ExecutionReport {
	r := &run{
		pb: pb,
		report: models.ExecutionReport{
			PlaybookID: pb.ID,
			Errors:     []string{},
			State:      models.StatePending,
			StartedAt:  e.now(),
		},
		log: e.logger.WithField("playbook_id", pb.ID),
	}

	r.log.WithFields(logrus.Fields{
		"steps":         len(pb.Steps),
		"preconditions": len(pb.Preconditions),
		"rollback_mode": e.mode,
	}).Info("Executing playbook")

	e.execute(ctx, r)

	r.report.Success = len(r.report.Errors) == 0
	if r.report.Success {
		r.transition(models.StateCompleted)
	} else {
		r.transition(models.StateFailed)
	}
	r.report.FinishedAt = e.now()

	r.log.WithFields(logrus.Fields{
		"success":         r.report.Success,
		"steps_completed": r.report.StepsCompleted,
		"errors":          len(r.report.Errors),
	}).Info("Playbook execution finished")

	return r.report
}

func (e *Executor) execute(ctx context.Context, r *run) {
	if err := ctx.Err(); err != nil {
		r.fail(&CancelledError{StepsCompleted: 0, Cause: err})
		return
	}

	if err := e.checkPreconditions(ctx, r.pb.Preconditions); err != nil {
		r.log.WithError(err).Warn("Precondition failed, aborting before any step runs")
		r.fail(err)
		return
	}
	r.transition(models.StatePreconditionsChecked)

	if !e.runSteps(ctx, r) {
		return
	}

	for _, expr := range r.pb.Postconditions {
		ok, err := e.check(ctx, expr)
		if err != nil || !ok {
			r.log.WithField("postcondition", expr).Warn("Postcondition failed")
			r.fail(&PostconditionError{Expression: expr, Cause: err})
		}
	}
}

// runSteps executes steps in order and reports whether every step completed
func (e *Executor) runSteps(ctx context.Context, r *run) bool {
	completed := make([]models.PlaybookStep, 0, len(r.pb.Steps))

	for _, step := range r.pb.Steps {
		if err := ctx.Err(); err != nil {
			r.log.WithField("steps_completed", r.report.StepsCompleted).Warn("Execution cancelled between steps")
			r.fail(&CancelledError{StepsCompleted: r.report.StepsCompleted, Cause: err})
			return false
		}

		r.transition(models.StateExecuting)
		log := r.log.WithField("step_id", step.ID)
		started := e.now()

		if err := e.runStep(ctx, step, log); err != nil {
			log.WithError(err).Warn("Step execution failed")
			stepErr := NewStepError(step.ID, PhaseExecute, err)
			r.fail(stepErr)
			e.recordStep(r, step.ID, models.OutcomeExecutionFailed, err.Error(), started)
			e.rollback(ctx, r, step, completed)
			return false
		}

		if step.HasValidation() {
			ok, err := e.validate(ctx, step.Validation)
			if err != nil || !ok {
				log.WithField("validation", step.Validation).Warn("Step validation failed")
				stepErr := NewStepError(step.ID, PhaseValidate, err)
				r.fail(stepErr)
				e.recordStep(r, step.ID, models.OutcomeValidationFailed, stepErr.Error(), started)
				e.rollback(ctx, r, step, completed)
				return false
			}
			r.transition(models.StateStepValidated)
		}

		r.report.StepsCompleted++
		completed = append(completed, step)
		e.recordStep(r, step.ID, models.OutcomeCompleted, "", started)
		log.Debug("Step completed")
	}

	return true
}

func (e *Executor) runStep(ctx context.Context, step models.PlaybookStep, log *logrus.Entry) error {
	log.WithField("action", step.Action).Info("Executing step")
	if step.Command == "" {
		log.Debug("Step has no command, treating as manual")
		return nil
	}

	cctx, cancel := e.stepContext(ctx)
	defer cancel()
	return e.runner.Run(cctx, step.Command)
}

// rollback runs the failing step's rollback and, in compensate mode, the rollbacks
// of completed steps from last to first. Rollback failures are recorded, not hidden.
func (e *Executor) rollback(ctx context.Context, r *run, failed models.PlaybookStep, completed []models.PlaybookStep) {
	targets := []models.PlaybookStep{failed}
	if e.mode == RollbackCompensate {
		for i := len(completed) - 1; i >= 0; i-- {
			targets = append(targets, completed[i])
		}
	}

	for _, step := range targets {
		if !step.HasRollback() {
			continue
		}

		log := r.log.WithField("step_id", step.ID)
		log.WithField("rollback", step.Rollback).Info("Rolling back step")
		started := e.now()

		cctx, cancel := e.stepContext(ctx)
		err := e.runner.Run(cctx, step.Rollback)
		cancel()

		if err != nil {
			log.WithError(err).Error("Rollback failed")
			r.fail(NewStepError(step.ID, PhaseRollback, err))
			e.recordStep(r, step.ID, models.OutcomeRollbackFailed, err.Error(), started)
			continue
		}
		r.report.RolledBack = append(r.report.RolledBack, step.ID)
		e.recordStep(r, step.ID, models.OutcomeRolledBack, "", started)
	}
}

func (e *Executor) checkPreconditions(ctx context.Context, preconditions []string) error {
	if e.concurrent && len(preconditions) > 1 {
		return e.checkPreconditionsConcurrently(ctx, preconditions)
	}

	for _, expr := range preconditions {
		ok, err := e.check(ctx, expr)
		if err != nil || !ok {
			return &PreconditionError{Expression: expr, Cause: err}
		}
	}
	return nil
}

// checkPreconditionsConcurrently waits for every result before picking the
// lowest-index failure, so the outcome matches sequential evaluation.
func (e *Executor) checkPreconditionsConcurrently(ctx context.Context, preconditions []string) error {
	type result struct {
		ok  bool
		err error
	}
	results := make([]result, len(preconditions))

	var g errgroup.Group
	for i, expr := range preconditions {
		i, expr := i, expr
		g.Go(func() error {
			ok, err := e.check(ctx, expr)
			results[i] = result{ok: ok, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i, res := range results {
		if res.err != nil || !res.ok {
			return &PreconditionError{Expression: preconditions[i], Cause: res.err}
		}
	}
	return nil
}

// check evaluates a read-only expression under the caller's context
func (e *Executor) check(ctx context.Context, expr string) (bool, error) {
	cctx, cancel := e.callContext(ctx)
	defer cancel()
	return e.checker.Check(cctx, expr)
}

// validate evaluates a step's validation as part of the in-flight step
func (e *Executor) validate(ctx context.Context, expr string) (bool, error) {
	cctx, cancel := e.stepContext(ctx)
	defer cancel()
	return e.checker.Check(cctx, expr)
}

func (e *Executor) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout > 0 {
		return context.WithTimeout(ctx, e.timeout)
	}
	return context.WithCancel(ctx)
}

// stepContext detaches side-effecting calls from caller cancellation so an in-flight
// step is never cut off halfway. The call timeout still applies.
func (e *Executor) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return e.callContext(context.WithoutCancel(ctx))
}

func (e *Executor) recordStep(r *run, stepID string, outcome models.StepOutcome, message string, started time.Time) {
	r.report.Steps = append(r.report.Steps, models.StepResult{
		StepID:   stepID,
		Outcome:  outcome,
		Message:  message,
		Duration: e.now().Sub(started),
	})
}
