package models

import (
	"fmt"
	"time"
)

// GoalStatus is the lifecycle state of a Goal.
type GoalStatus string

// Goal status constants
const (
	GoalPending           GoalStatus = "pending"
	GoalActive            GoalStatus = "active"
	GoalCompletedSuccess  GoalStatus = "completed_success"
	GoalCompletedNoAction GoalStatus = "completed_no_action"
	GoalFailedPlanning    GoalStatus = "failed_planning"
	GoalFailedExecution   GoalStatus = "failed_execution"
	GoalPausedDependency  GoalStatus = "paused_dependency"
	GoalCancelled         GoalStatus = "cancelled"
)

// Valid reports whether s is one of the known goal statuses.
func (s GoalStatus) Valid() bool {
	switch s {
	case GoalPending, GoalActive, GoalCompletedSuccess, GoalCompletedNoAction,
		GoalFailedPlanning, GoalFailedExecution, GoalPausedDependency, GoalCancelled:
		return true
	}
	return false
}

// IsTerminal returns true for statuses a goal never leaves on its own.
func (s GoalStatus) IsTerminal() bool {
	switch s {
	case GoalCompletedSuccess, GoalCompletedNoAction, GoalFailedPlanning,
		GoalFailedExecution, GoalCancelled:
		return true
	}
	return false
}

// IsFailure returns true for terminal statuses that require a failure reason.
func (s GoalStatus) IsFailure() bool {
	return s == GoalFailedPlanning || s == GoalFailedExecution
}

// IsSchedulable returns true for the only two statuses the scheduler considers.
func (s GoalStatus) IsSchedulable() bool {
	return s == GoalPending || s == GoalPausedDependency
}

// Icon returns a display icon for the status.
func (s GoalStatus) Icon() string {
	switch s {
	case GoalPending:
		return "○"
	case GoalActive:
		return "◐"
	case GoalCompletedSuccess:
		return "●"
	case GoalCompletedNoAction:
		return "◌"
	case GoalFailedPlanning, GoalFailedExecution:
		return "✗"
	case GoalPausedDependency:
		return "⏸"
	case GoalCancelled:
		return "⊘"
	default:
		return "?"
	}
}

// Goal is a unit of desired outcome with a priority and dependency edges.
// Goals are never deleted; they are moved to a terminal status instead.
type Goal struct {
	ID            string         `json:"id"`
	Description   string         `json:"description"`
	Priority      int            `json:"priority"`
	Status        GoalStatus     `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Sequence      int64          `json:"sequence"` // creation order, breaks CreatedAt ties
	ParentID      string         `json:"parent_id,omitempty"`
	SubgoalIDs    []string       `json:"subgoal_ids,omitempty"`
	DependencyIDs []string       `json:"dependency_ids,omitempty"`
	DependentIDs  []string       `json:"dependent_ids,omitempty"`
	PlanID        string         `json:"plan_id,omitempty"`
	Attempts      int            `json:"attempts"`
	FailureReason string         `json:"failure_reason,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Source        string         `json:"source,omitempty"`
}

// Validate checks if the goal has all required fields
func (g *Goal) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("goal id is required")
	}
	if g.Description == "" {
		return fmt.Errorf("goal %s: description is required", g.ID)
	}
	if !g.Status.Valid() {
		return fmt.Errorf("goal %s: unknown status %q", g.ID, g.Status)
	}
	if g.Status.IsFailure() && g.FailureReason == "" {
		return fmt.Errorf("goal %s: status %s requires a failure reason", g.ID, g.Status)
	}
	return nil
}

// Clone returns a deep copy of the goal.
func (g *Goal) Clone() Goal {
	c := *g
	c.SubgoalIDs = cloneStrings(g.SubgoalIDs)
	c.DependencyIDs = cloneStrings(g.DependencyIDs)
	c.DependentIDs = cloneStrings(g.DependentIDs)
	if g.Metadata != nil {
		c.Metadata = make(map[string]any, len(g.Metadata))
		for k, v := range g.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
