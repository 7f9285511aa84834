// Package executor builds Plans from action specs and drives their actions to
// completion, either one at a time in declared order or with bounded
// parallelism that honours intra-plan dependencies.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/pursuit/internal/models"
)

// ActionLogger receives action lifecycle events. It is called while the
// executor holds its lock, so implementations must not call back into it.
type ActionLogger interface {
	LogActionStart(planID string, action models.Action)
	LogActionResult(planID string, action models.Action)
}

// PlanExecutor owns every plan it creates. All plan and action mutations go
// through settleAction and abortPlan under mu.
type PlanExecutor struct {
	mu             sync.Mutex
	plans          map[string]*models.Plan
	runs           map[string]*planRun
	registry       *Registry
	logger         ActionLogger
	maxConcurrency int
	defaultTimeout time.Duration
	now            func() time.Time
	newID          func() string
}

// planRun tracks a plan while ExecutePlan is driving it.
type planRun struct {
	cancel    context.CancelFunc
	pause     bool
	cancelled bool
}

func (r *planRun) reason(ctx context.Context) string {
	if r.cancelled {
		return "cancelled by request"
	}
	return fmt.Sprintf("execution interrupted: %v", ctx.Err())
}

// Option configures a PlanExecutor.
type Option func(*PlanExecutor)

// WithMaxConcurrency bounds the number of actions running at once in parallel mode.
func WithMaxConcurrency(n int) Option {
	return func(e *PlanExecutor) {
		if n > 0 {
			e.maxConcurrency = n
		}
	}
}

// WithDefaultTimeout applies to actions that do not declare their own timeout.
// Zero disables the default.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *PlanExecutor) {
		if d >= 0 {
			e.defaultTimeout = d
		}
	}
}

// WithActionLogger sets the logger for action events.
func WithActionLogger(logger ActionLogger) Option {
	return func(e *PlanExecutor) {
		e.logger = logger
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *PlanExecutor) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator replaces the uuid-based plan id generator.
func WithIDGenerator(newID func() string) Option {
	return func(e *PlanExecutor) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// NewPlanExecutor creates an executor dispatching actions through registry.
func NewPlanExecutor(registry *Registry, opts ...Option) *PlanExecutor {
	if registry == nil {
		registry = NewRegistry()
	}
	e := &PlanExecutor{
		plans:          make(map[string]*models.Plan),
		runs:           make(map[string]*planRun),
		registry:       registry,
		maxConcurrency: DefaultMaxConcurrency,
		now:            time.Now,
		newID:          func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the handler registry used for dispatch and validation.
func (e *PlanExecutor) Registry() *Registry {
	return e.registry
}

// CreatePlan builds a plan for goalID from specs. Every action starts
// Pending. Params that reference another action add an implicit dependency.
//
// When the specs do not validate, the plan is still recorded, with status
// FailedValidation, and returned together with a *ValidationError.
func (e *PlanExecutor) CreatePlan(goalID string, specs []models.ActionSpec) (*models.Plan, error) {
	now := e.now()
	plan := &models.Plan{
		ID:        e.newID(),
		GoalID:    goalID,
		Status:    models.PlanPendingGeneration,
		CreatedAt: now,
		UpdatedAt: now,
		Results:   make(map[string]any),
	}

	verr := ValidateSpecs(specs, e.registry.Supports)
	for _, spec := range WithReferenceDependencies(specs) {
		plan.Actions = append(plan.Actions, models.NewAction(spec, now))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if verr != nil {
		var ve *ValidationError
		if errors.As(verr, &ve) {
			ve.PlanID = plan.ID
		}
		e.abortPlan(plan, models.PlanFailedValidation, verr.Error())
	} else {
		plan.Status = models.PlanReady
	}
	e.plans[plan.ID] = plan
	return plan.Clone(), verr
}

// ExecutePlan drives the plan until it reaches a terminal status or is paused
// and returns a snapshot of it. Plan-level failures are reported through the
// returned plan's status; the error is reserved for misuse and for ctx being
// cancelled, in which case the plan ends Cancelled.
func (e *PlanExecutor) ExecutePlan(ctx context.Context, planID string, mode models.ExecutionMode) (*models.Plan, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	e.mu.Lock()
	plan, ok := e.plans[planID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("plan %s: %w", planID, ErrPlanNotFound)
	}
	if _, running := e.runs[planID]; running {
		e.mu.Unlock()
		return nil, fmt.Errorf("plan %s: %w", planID, ErrPlanRunning)
	}
	if plan.Status.IsTerminal() {
		snapshot := plan.Clone()
		e.mu.Unlock()
		return snapshot, fmt.Errorf("plan %s is %s: %w", planID, plan.Status, ErrPlanFinished)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	run := &planRun{cancel: cancel}
	e.runs[planID] = run
	plan.Status = models.PlanInProgress
	plan.UpdatedAt = e.now()
	e.mu.Unlock()

	switch mode {
	case models.ModeSequential:
		e.runSequential(runCtx, plan, run)
	case models.ModeParallel:
		e.runParallel(runCtx, plan, run)
	}

	e.mu.Lock()
	delete(e.runs, planID)
	snapshot := plan.Clone()
	e.mu.Unlock()

	if err := ctx.Err(); err != nil && snapshot.Status == models.PlanCancelled {
		return snapshot, err
	}
	return snapshot, nil
}

// PausePlan asks a running plan to stop launching actions. In-flight actions
// finish normally; the plan then settles to Paused and can be resumed with
// ExecutePlan. A plan that is not running is paused immediately.
func (e *PlanExecutor) PausePlan(planID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	plan, ok := e.plans[planID]
	if !ok {
		return fmt.Errorf("plan %s: %w", planID, ErrPlanNotFound)
	}
	if plan.Status.IsTerminal() {
		return fmt.Errorf("plan %s is %s: %w", planID, plan.Status, ErrPlanFinished)
	}
	if run, running := e.runs[planID]; running {
		run.pause = true
		return nil
	}
	e.pausePlan(plan)
	return nil
}

// CancelPlan cancels a plan. In-flight actions are abandoned and every
// unfinished action settles to Cancelled.
func (e *PlanExecutor) CancelPlan(planID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	plan, ok := e.plans[planID]
	if !ok {
		return fmt.Errorf("plan %s: %w", planID, ErrPlanNotFound)
	}
	if plan.Status.IsTerminal() {
		return fmt.Errorf("plan %s is %s: %w", planID, plan.Status, ErrPlanFinished)
	}
	if run, running := e.runs[planID]; running {
		run.cancelled = true
		run.cancel()
		return nil
	}
	e.abortPlan(plan, models.PlanCancelled, "cancelled by request")
	return nil
}

// GetPlan returns a copy of the plan with the given id.
func (e *PlanExecutor) GetPlan(planID string) (*models.Plan, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	plan, ok := e.plans[planID]
	if !ok {
		return nil, false
	}
	return plan.Clone(), true
}

// Plans returns copies of every plan in creation order.
func (e *PlanExecutor) Plans() []*models.Plan {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*models.Plan, 0, len(e.plans))
	for _, plan := range e.plans {
		out = append(out, plan.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// RestorePlans loads plans from a snapshot. Actions that were in flight are
// reset to Pending and plans that were running become Paused, so that
// ExecutePlan resumes them.
func (e *PlanExecutor) RestorePlans(plans []*models.Plan) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, saved := range plans {
		if saved == nil || saved.ID == "" {
			return fmt.Errorf("restore: plan without id")
		}
		if _, exists := e.plans[saved.ID]; exists {
			return fmt.Errorf("restore: duplicate plan id %s", saved.ID)
		}
		plan := saved.Clone()
		if plan.Results == nil {
			plan.Results = make(map[string]any)
		}
		for _, action := range plan.Actions {
			switch action.Status {
			case models.ActionInProgress, models.ActionReadyToExecute:
				action.Status = models.ActionPending
				action.StartedAt = nil
				action.CompletedAt = nil
			case models.ActionCompletedSuccess:
				if _, ok := plan.Results[action.ID]; !ok {
					plan.Results[action.ID] = action.Result
				}
			}
		}
		if plan.Status == models.PlanInProgress || plan.Status == models.PlanPendingGeneration {
			plan.Status = models.PlanPaused
		}
		e.plans[plan.ID] = plan
	}
	return nil
}

// startAction moves action to InProgress and returns the copy to hand to its
// handler. If its params cannot be resolved the action fails and ok is false.
func (e *PlanExecutor) startAction(plan *models.Plan, action *models.Action) (bound models.Action, ok bool) {
	action.Status = models.ActionReadyToExecute
	values, err := ResolveParams(plan, action)
	if err != nil {
		e.settleAction(plan, action, models.ActionFailed, nil, err)
		return models.Action{}, false
	}

	now := e.now()
	action.Status = models.ActionInProgress
	action.StartedAt = &now
	action.CompletedAt = nil
	action.Attempts++
	plan.UpdatedAt = now
	if e.logger != nil {
		e.logger.LogActionStart(plan.ID, *action.Clone())
	}
	return boundAction(action, values), true
}

type actionOutcome struct {
	id     string
	result any
	err    error
}

// invoke runs one action through the registry, enforcing its timeout. The
// handler runs in its own goroutine so that a handler ignoring ctx cannot hold
// up the plan; its late result lands in a buffered channel and is dropped.
func (e *PlanExecutor) invoke(ctx context.Context, action models.Action) (any, error) {
	timeout := action.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	actx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan actionOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- actionOutcome{err: NewActionError(action.ID, action.Type, "handler panicked", fmt.Errorf("%v", r))}
			}
		}()
		result, err := e.registry.Execute(actx, action)
		done <- actionOutcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err == nil {
			return out.result, nil
		}
		if ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
			return nil, NewTimeoutError(action.ID, timeout)
		}
		return nil, wrapHandlerError(action, out.err)
	case <-actx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, NewTimeoutError(action.ID, timeout)
	}
}

func wrapHandlerError(action models.Action, err error) error {
	if IsActionError(err) || IsTimeoutError(err) || IsToolUnavailableError(err) {
		return err
	}
	return NewActionError(action.ID, action.Type, "handler failed", err)
}

// completeAction records the outcome of an invocation.
func (e *PlanExecutor) completeAction(ctx context.Context, plan *models.Plan, action *models.Action, result any, err error, run *planRun) {
	if action.Status.IsTerminal() {
		// already settled by a cancellation
		return
	}
	switch {
	case err == nil:
		e.settleAction(plan, action, models.ActionCompletedSuccess, result, nil)
	case ctx.Err() != nil:
		e.settleAction(plan, action, models.ActionCancelled, nil, fmt.Errorf("%s: %w", run.reason(ctx), context.Canceled))
	default:
		e.settleAction(plan, action, models.ActionFailed, nil, err)
	}
}

// settleAction is the single place an action reaches a terminal status. When
// it was the plan's last outstanding action, the plan's own terminal status
// is computed.
func (e *PlanExecutor) settleAction(plan *models.Plan, action *models.Action, status models.ActionStatus, result any, err error) {
	now := e.now()
	action.Status = status
	action.CompletedAt = &now
	if status == models.ActionCompletedSuccess {
		action.Result = result
		action.Error = ""
		action.Err = nil
		plan.Results[action.ID] = result
	} else {
		action.Result = nil
		if err == nil {
			err = fmt.Errorf("action %s ended %s", action.ID, status)
		}
		action.Err = err
		action.Error = err.Error()
	}
	plan.UpdatedAt = now

	if e.logger != nil {
		e.logger.LogActionResult(plan.ID, *action.Clone())
	}

	if !plan.Status.IsTerminal() && plan.Outstanding() == 0 {
		e.finishPlan(plan)
	}
}

// finishPlan derives the terminal status of a plan with no outstanding actions.
func (e *PlanExecutor) finishPlan(plan *models.Plan) {
	now := e.now()
	switch {
	case plan.FailedCritical() != nil:
		plan.Status = models.PlanFailedAction
		plan.FailureReason = lossReason(plan.FailedCritical())
	case hasStatus(plan, models.ActionCancelled):
		plan.Status = models.PlanCancelled
		if plan.FailureReason == "" {
			plan.FailureReason = "actions were cancelled"
		}
	default:
		plan.Status = models.PlanCompletedSuccess
		plan.FailureReason = ""
	}
	plan.CompletedAt = &now
	plan.UpdatedAt = now
}

// abortPlan moves a plan to a terminal status and cancels every action that
// has not finished. It is a no-op on terminal plans.
func (e *PlanExecutor) abortPlan(plan *models.Plan, status models.PlanStatus, reason string) {
	if plan.Status.IsTerminal() {
		return
	}
	now := e.now()
	plan.Status = status
	plan.FailureReason = reason
	plan.CompletedAt = &now
	plan.UpdatedAt = now

	for _, action := range plan.Actions {
		if !action.Status.IsTerminal() {
			e.settleAction(plan, action, models.ActionCancelled, nil, fmt.Errorf("%s: %w", reason, context.Canceled))
		}
	}
}

func (e *PlanExecutor) pausePlan(plan *models.Plan) {
	plan.Status = models.PlanPaused
	plan.UpdatedAt = e.now()
}

// dependencyState reports whether every dependency of action has succeeded.
// blocked is non-nil when a dependency can no longer succeed.
func dependencyState(plan *models.Plan, action *models.Action) (ready bool, blocked error) {
	ready = true
	for _, dep := range action.DependsOn {
		d := plan.Action(dep)
		switch {
		case d == nil:
			return false, fmt.Errorf("dependency %s does not exist", dep)
		case d.Status.BlocksDependents():
			return false, fmt.Errorf("dependency %s ended %s", dep, d.Status)
		case d.Status != models.ActionCompletedSuccess:
			ready = false
		}
	}
	return ready, nil
}

// criticalLoss reports whether action is critical and can no longer succeed.
func criticalLoss(action *models.Action) bool {
	return action.Critical && (action.Status == models.ActionFailed || action.Status == models.ActionSkippedDependency)
}

func lossReason(action *models.Action) string {
	if action.Status == models.ActionSkippedDependency {
		return fmt.Sprintf("critical action %s skipped: %s", action.ID, action.Error)
	}
	return fmt.Sprintf("critical action %s (%s) failed: %s", action.ID, action.Type, action.Error)
}

func hasStatus(plan *models.Plan, status models.ActionStatus) bool {
	for _, a := range plan.Actions {
		if a.Status == status {
			return true
		}
	}
	return false
}
