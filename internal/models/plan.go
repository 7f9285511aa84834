package models

import "time"

// PlanStatus is the lifecycle state of a Plan.
type PlanStatus string

// Plan status constants
const (
	PlanPendingGeneration PlanStatus = "pending_generation"
	PlanReady             PlanStatus = "ready"
	PlanInProgress        PlanStatus = "in_progress"
	PlanCompletedSuccess  PlanStatus = "completed_success"
	PlanFailedAction      PlanStatus = "failed_action"
	PlanFailedValidation  PlanStatus = "failed_validation"
	PlanPaused            PlanStatus = "paused"
	PlanCancelled         PlanStatus = "cancelled"
)

// IsTerminal returns true once the plan will not execute again.
func (s PlanStatus) IsTerminal() bool {
	switch s {
	case PlanCompletedSuccess, PlanFailedAction, PlanFailedValidation, PlanCancelled:
		return true
	}
	return false
}

// ExecutionMode selects how a plan's actions are driven.
type ExecutionMode string

const (
	// ModeSequential runs actions one at a time in declared order.
	ModeSequential ExecutionMode = "sequential"
	// ModeParallel runs ready actions concurrently, bounded by max concurrency,
	// honouring declared dependencies.
	ModeParallel ExecutionMode = "parallel"
)

// Valid reports whether m is a known execution mode.
func (m ExecutionMode) Valid() bool {
	return m == ModeSequential || m == ModeParallel
}

// Plan is an ordered DAG of Actions generated to satisfy exactly one Goal.
type Plan struct {
	ID            string         `json:"id"`
	GoalID        string         `json:"goal_id"`
	Actions       []*Action      `json:"actions"`
	Status        PlanStatus     `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	Results       map[string]any `json:"results,omitempty"` // action id -> successful result
	Cursor        int            `json:"cursor"`            // next action index in sequential mode
	FailureReason string         `json:"failure_reason,omitempty"`
}

// Action returns the action with the given id, or nil.
func (p *Plan) Action(id string) *Action {
	for _, a := range p.Actions {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// Outstanding returns the number of actions that have not reached a terminal status.
func (p *Plan) Outstanding() int {
	n := 0
	for _, a := range p.Actions {
		if !a.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// FailedCritical returns the first critical action that failed or was skipped,
// or nil when no critical action has been lost.
func (p *Plan) FailedCritical() *Action {
	for _, a := range p.Actions {
		if a.Critical && (a.Status == ActionFailed || a.Status == ActionSkippedDependency) {
			return a
		}
	}
	return nil
}

// Specs returns the specs of every action in declared order.
func (p *Plan) Specs() []ActionSpec {
	specs := make([]ActionSpec, 0, len(p.Actions))
	for _, a := range p.Actions {
		specs = append(specs, a.Spec())
	}
	return specs
}

// Clone returns a deep copy of the plan.
func (p *Plan) Clone() *Plan {
	c := *p
	c.Actions = make([]*Action, len(p.Actions))
	for i, a := range p.Actions {
		c.Actions[i] = a.Clone()
	}
	if p.Results != nil {
		c.Results = make(map[string]any, len(p.Results))
		for k, v := range p.Results {
			c.Results[k] = v
		}
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// ExecutionSummary aggregates the outcome of an orchestrator run.
type ExecutionSummary struct {
	TotalGoals     int           // Goals taken from the scheduler
	Succeeded      int           // Goals completed successfully (including no-action)
	Failed         int           // Goals that ended failed
	Cancelled      int           // Goals cancelled
	Recoveries     int           // Recovery strategies applied
	Duration       time.Duration // Wall time of the run
	FailedGoals    []Goal        // Details of failed goals
	StalledGoalIDs []string      // Goals left paused behind failed dependencies
}
