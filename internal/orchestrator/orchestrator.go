// Package orchestrator drives goals to completion: it takes the next
// actionable goal from the store, asks the plan generator for actions, runs
// the plan and, when the plan fails, applies the recovery strategy the
// analyzer recommends until the goal succeeds or is given up.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harrison/pursuit/internal/executor"
	"github.com/harrison/pursuit/internal/goals"
	"github.com/harrison/pursuit/internal/models"
	"github.com/harrison/pursuit/internal/recovery"
	"github.com/harrison/pursuit/internal/snapshot"
)

// DefaultRetryDelay is the base delay of RetryWithDelay; attempt n waits n times as long.
const DefaultRetryDelay = time.Second

// PlanGenerator turns a goal into action specs. planCtx carries replanning
// hints such as "simplify" after a failed attempt.
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, goal models.Goal, planCtx map[string]any) ([]models.ActionSpec, error)
}

// Logger defines the interface for logging orchestrator progress and results.
type Logger interface {
	LogGoalStart(goal models.Goal)
	LogPlanStart(plan *models.Plan, mode models.ExecutionMode)
	LogPlanComplete(plan *models.Plan)
	LogRecovery(goal models.Goal, failure models.FailureType, strategy models.RecoveryStrategy, attempt int)
	LogGoalComplete(goal models.Goal, duration time.Duration)
	LogSummary(summary models.ExecutionSummary)
	LogWarn(message string)
}

// Orchestrator coordinates goal execution, handles graceful shutdown, and
// aggregates results.
type Orchestrator struct {
	store     *goals.Store
	executor  *executor.PlanExecutor
	generator PlanGenerator
	analyzer  *recovery.Analyzer
	logger    Logger
	snapshots snapshot.Backend

	mode        models.ExecutionMode
	retryDelay  time.Duration
	maxAttempts int
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	recoveries int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the progress logger. A nil logger keeps the orchestrator silent.
func WithLogger(logger Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithAnalyzer enables recovery. Without an analyzer a failed plan fails its goal.
func WithAnalyzer(analyzer *recovery.Analyzer) Option {
	return func(o *Orchestrator) {
		o.analyzer = analyzer
	}
}

// WithSnapshots saves a snapshot after every goal settles.
func WithSnapshots(backend snapshot.Backend) Option {
	return func(o *Orchestrator) {
		o.snapshots = backend
	}
}

// WithMode selects sequential or parallel plan execution.
func WithMode(mode models.ExecutionMode) Option {
	return func(o *Orchestrator) {
		if mode.Valid() {
			o.mode = mode
		}
	}
}

// WithRetryDelay sets the base delay of RetryWithDelay.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.retryDelay = d
		}
	}
}

// WithMaxAttempts bounds recovery attempts per goal. Zero uses the analyzer default.
func WithMaxAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.maxAttempts = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSleep replaces the retry back-off wait, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) {
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

// New creates an Orchestrator. store, exec and generator are required.
func New(store *goals.Store, exec *executor.PlanExecutor, generator PlanGenerator, opts ...Option) *Orchestrator {
	if store == nil || exec == nil || generator == nil {
		panic("orchestrator: store, executor and generator are required")
	}
	o := &Orchestrator{
		store:      store,
		executor:   exec,
		generator:  generator,
		mode:       models.ModeParallel,
		retryDelay: DefaultRetryDelay,
		now:        time.Now,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes goals until none is actionable, a plan is paused, or ctx is
// cancelled. SIGINT and SIGTERM cancel the run gracefully: the goal in
// flight is cancelled and the state is saved.
func (o *Orchestrator) Run(ctx context.Context) (models.ExecutionSummary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			o.warn("Received interrupt signal, shutting down gracefully...")
			cancel()
		case <-ctx.Done():
		}
	}()

	start := o.now()
	o.mu.Lock()
	baseRecoveries := o.recoveries
	o.mu.Unlock()

	var processed []models.Goal
	var runErr error
	for ctx.Err() == nil {
		goal, ok, err := o.RunNext(ctx)
		if ok {
			processed = append(processed, goal)
		}
		if err != nil {
			runErr = err
			break
		}
		if !ok || !goal.Status.IsTerminal() {
			break
		}
	}
	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}

	o.mu.Lock()
	recoveries := o.recoveries - baseRecoveries
	o.mu.Unlock()

	summary := o.summarize(processed, recoveries, o.now().Sub(start))
	o.saveSnapshot(context.WithoutCancel(ctx))
	if o.logger != nil {
		o.logger.LogSummary(summary)
	}
	return summary, runErr
}

func (o *Orchestrator) summarize(processed []models.Goal, recoveries int, duration time.Duration) models.ExecutionSummary {
	summary := models.ExecutionSummary{
		TotalGoals:     len(processed),
		Recoveries:     recoveries,
		Duration:       duration,
		StalledGoalIDs: o.store.Stalled(),
	}
	for _, goal := range processed {
		switch {
		case goal.Status == models.GoalCompletedSuccess || goal.Status == models.GoalCompletedNoAction:
			summary.Succeeded++
		case goal.Status.IsFailure():
			summary.Failed++
			summary.FailedGoals = append(summary.FailedGoals, goal)
		case goal.Status == models.GoalCancelled:
			summary.Cancelled++
		}
	}
	return summary
}

// RunNext takes the next actionable goal and works on it until it settles.
// ok is false when no goal is actionable. The returned goal is normally
// terminal; it is Pending again when its plan was paused. The error is
// reserved for ctx cancellation and store failures.
func (o *Orchestrator) RunNext(ctx context.Context) (models.Goal, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Goal{}, false, err
	}
	goal, ok := o.store.NextActionableGoal()
	if !ok {
		return models.Goal{}, false, nil
	}
	if o.logger != nil {
		o.logger.LogGoalStart(goal)
	}

	start := o.now()
	runErr := o.pursue(ctx, goal)

	final, _ := o.store.Get(goal.ID)
	if o.logger != nil {
		o.logger.LogGoalComplete(final, o.now().Sub(start))
	}
	o.saveSnapshot(context.WithoutCancel(ctx))
	return final, true, runErr
}

// attempt carries the replanning state of one goal across recovery attempts.
type attempt struct {
	goal         models.Goal
	planCtx      map[string]any
	alternatives map[string]int // action id -> alternatives already used
	recoveries   int
	pending      *pendingOutcome
}

// pendingOutcome is a non-terminal strategy whose result is known only
// after the next attempt finishes.
type pendingOutcome struct {
	failure  models.FailureType
	strategy models.RecoveryStrategy
}

// failure describes why an attempt did not succeed.
type failure struct {
	err    error
	reason string
	status models.GoalStatus // FailedPlanning or FailedExecution
	action *models.Action    // the failing critical action, if any
}

func (o *Orchestrator) pursue(ctx context.Context, goal models.Goal) error {
	st := &attempt{
		goal:         goal,
		planCtx:      map[string]any{},
		alternatives: map[string]int{},
	}

	plan := o.resumablePlan(goal)
	for {
		if plan == nil {
			var f *failure
			plan, f = o.preparePlan(ctx, st)
			if f != nil {
				if done, err := o.handleFailure(ctx, st, f); done || err != nil {
					return err
				}
				continue
			}
			if plan == nil {
				o.settleOutcome(ctx, st, true)
				return o.finish(st, models.GoalCompletedNoAction, "")
			}
		}

		if o.logger != nil {
			o.logger.LogPlanStart(plan, o.mode)
		}
		result, err := o.executor.ExecutePlan(ctx, plan.ID, o.mode)
		if result != nil && o.logger != nil {
			o.logger.LogPlanComplete(result)
		}
		plan = nil

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				o.finish(st, models.GoalCancelled, fmt.Sprintf("run interrupted: %v", ctxErr))
				return ctxErr
			}
			f := &failure{err: err, reason: err.Error(), status: models.GoalFailedExecution}
			if done, herr := o.handleFailure(ctx, st, f); done || herr != nil {
				return herr
			}
			continue
		}

		switch result.Status {
		case models.PlanCompletedSuccess:
			o.settleOutcome(ctx, st, true)
			return o.finish(st, models.GoalCompletedSuccess, "")
		case models.PlanPaused:
			return o.finish(st, models.GoalPending, "")
		case models.PlanCancelled:
			return o.finish(st, models.GoalCancelled, result.FailureReason)
		default:
			if done, herr := o.handleFailure(ctx, st, planFailure(result)); done || herr != nil {
				return herr
			}
		}
	}
}

// resumablePlan returns the goal's unfinished plan, e.g. one restored from a
// snapshot, so it continues instead of being regenerated.
func (o *Orchestrator) resumablePlan(goal models.Goal) *models.Plan {
	if goal.PlanID == "" {
		return nil
	}
	plan, ok := o.executor.GetPlan(goal.PlanID)
	if !ok || plan.Status.IsTerminal() {
		return nil
	}
	return plan
}

// preparePlan generates and creates the next plan. It returns nil, nil when
// the generator has nothing to do.
func (o *Orchestrator) preparePlan(ctx context.Context, st *attempt) (*models.Plan, *failure) {
	specs, err := o.generator.GeneratePlan(ctx, st.goal, clonePlanCtx(st.planCtx))
	if err != nil {
		return nil, &failure{
			err:    err,
			reason: fmt.Sprintf("plan generation failed: %v", err),
			status: models.GoalFailedPlanning,
		}
	}
	if len(specs) == 0 {
		return nil, nil
	}
	specs = o.applyAlternatives(specs, st.alternatives)

	plan, err := o.executor.CreatePlan(st.goal.ID, specs)
	if plan != nil {
		if aerr := o.store.AttachPlan(st.goal.ID, plan.ID); aerr != nil {
			o.warn(fmt.Sprintf("attach plan %s to goal %s: %v", plan.ID, st.goal.ID, aerr))
		}
	}
	if err != nil {
		if plan != nil && o.logger != nil {
			o.logger.LogPlanComplete(plan)
		}
		return nil, &failure{
			err:    err,
			reason: fmt.Sprintf("plan failed validation: %v", err),
			status: models.GoalFailedPlanning,
		}
	}
	return plan, nil
}

func planFailure(plan *models.Plan) *failure {
	f := &failure{reason: plan.FailureReason, status: models.GoalFailedExecution}
	if f.reason == "" {
		f.reason = fmt.Sprintf("plan %s ended %s", plan.ID, plan.Status)
	}
	if action := plan.FailedCritical(); action != nil {
		f.action = action
		f.err = action.Err
		if f.err == nil && action.Error != "" {
			f.err = errors.New(action.Error)
		}
	}
	if f.err == nil {
		f.err = errors.New(f.reason)
	}
	return f
}

// finish moves the goal to status.
func (o *Orchestrator) finish(st *attempt, status models.GoalStatus, reason string) error {
	if err := o.store.UpdateGoalStatus(st.goal.ID, status, reason); err != nil {
		return fmt.Errorf("update goal %s: %w", st.goal.ID, err)
	}
	return nil
}

func (o *Orchestrator) saveSnapshot(ctx context.Context) {
	if o.snapshots == nil {
		return
	}
	snap := snapshot.Capture(o.store, o.executor, o.now())
	if err := o.snapshots.Save(ctx, snap); err != nil {
		o.warn(fmt.Sprintf("failed to save snapshot: %v", err))
	}
}

func (o *Orchestrator) warn(message string) {
	if o.logger != nil {
		o.logger.LogWarn(message)
	}
}

func clonePlanCtx(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
