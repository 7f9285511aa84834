package models

import (
	"errors"
	"fmt"
	"time"
)

// ActionStatus is the lifecycle state of an Action within its plan.
type ActionStatus string

// Action status constants
const (
	ActionPending           ActionStatus = "pending"
	ActionReadyToExecute    ActionStatus = "ready_to_execute"
	ActionInProgress        ActionStatus = "in_progress"
	ActionCompletedSuccess  ActionStatus = "completed_success"
	ActionFailed            ActionStatus = "failed"
	ActionSkippedDependency ActionStatus = "skipped_dependency"
	ActionCancelled         ActionStatus = "cancelled"
)

// IsTerminal returns true once the action will not run again in this plan.
func (s ActionStatus) IsTerminal() bool {
	switch s {
	case ActionCompletedSuccess, ActionFailed, ActionSkippedDependency, ActionCancelled:
		return true
	}
	return false
}

// BlocksDependents returns true for terminal statuses that make every
// dependent action unrunnable.
func (s ActionStatus) BlocksDependents() bool {
	return s == ActionFailed || s == ActionSkippedDependency || s == ActionCancelled
}

// ActionSpec is what a plan generator returns: the description of one action
// before the executor turns it into a tracked Action.
type ActionSpec struct {
	ID           string           `json:"id"`
	Type         string           `json:"type"`
	Params       map[string]Param `json:"params,omitempty"`
	Description  string           `json:"description,omitempty"`
	DependsOn    []string         `json:"depends_on,omitempty"`
	Critical     bool             `json:"is_critical"`
	Timeout      time.Duration    `json:"timeout,omitempty"`
	Alternatives []string         `json:"alternatives,omitempty"`
}

// Validate checks if the spec has all required fields
func (s *ActionSpec) Validate() error {
	if s.ID == "" {
		return errors.New("action id is required")
	}
	if s.Type == "" {
		return fmt.Errorf("action %s: type is required", s.ID)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("action %s: timeout must be >= 0", s.ID)
	}
	return nil
}

// Clone returns a deep copy of the spec.
func (s ActionSpec) Clone() ActionSpec {
	s.Params = cloneParams(s.Params)
	s.DependsOn = cloneStrings(s.DependsOn)
	s.Alternatives = cloneStrings(s.Alternatives)
	return s
}

// Action is the smallest externally executable unit of work within a Plan.
type Action struct {
	ID           string           `json:"id"`
	Type         string           `json:"type"`
	Params       map[string]Param `json:"params,omitempty"`
	Description  string           `json:"description,omitempty"`
	Status       ActionStatus     `json:"status"`
	Result       any              `json:"result,omitempty"`
	Error        string           `json:"error,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	Attempts     int              `json:"attempts"`
	DependsOn    []string         `json:"depends_on,omitempty"`
	Critical     bool             `json:"is_critical"`
	Timeout      time.Duration    `json:"timeout,omitempty"`
	Alternatives []string         `json:"alternatives,omitempty"`

	// Err keeps the typed error of the last attempt for classification.
	// It is not persisted; Error carries the message across restarts.
	Err error `json:"-"`
}

// NewAction builds a pending Action from its spec.
func NewAction(spec ActionSpec, now time.Time) *Action {
	spec = spec.Clone()
	return &Action{
		ID:           spec.ID,
		Type:         spec.Type,
		Params:       spec.Params,
		Description:  spec.Description,
		Status:       ActionPending,
		CreatedAt:    now,
		DependsOn:    spec.DependsOn,
		Critical:     spec.Critical,
		Timeout:      spec.Timeout,
		Alternatives: spec.Alternatives,
	}
}

// Spec converts the action back into the spec it was built from.
func (a *Action) Spec() ActionSpec {
	return ActionSpec{
		ID:           a.ID,
		Type:         a.Type,
		Params:       a.Params,
		Description:  a.Description,
		DependsOn:    a.DependsOn,
		Critical:     a.Critical,
		Timeout:      a.Timeout,
		Alternatives: a.Alternatives,
	}.Clone()
}

// Value returns the literal value of param key. Handlers receive actions whose
// references have already been resolved, so every param is a literal there.
func (a *Action) Value(key string) (any, bool) {
	p, ok := a.Params[key]
	if !ok || p.IsReference() {
		return nil, false
	}
	return p.Value, true
}

// Duration returns how long the last attempt ran.
func (a *Action) Duration() time.Duration {
	if a.StartedAt == nil {
		return 0
	}
	if a.CompletedAt == nil {
		return time.Since(*a.StartedAt)
	}
	return a.CompletedAt.Sub(*a.StartedAt)
}

// Clone returns a deep copy of the action. Result is copied by reference.
func (a *Action) Clone() *Action {
	c := *a
	c.Params = cloneParams(a.Params)
	c.DependsOn = cloneStrings(a.DependsOn)
	c.Alternatives = cloneStrings(a.Alternatives)
	if a.StartedAt != nil {
		t := *a.StartedAt
		c.StartedAt = &t
	}
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// HasCyclicDependencies detects circular dependencies in a list of action specs
// using DFS with color marking (white=unvisited, gray=visiting, black=visited)
func HasCyclicDependencies(specs []ActionSpec) bool {
	// Build adjacency list: action id -> list of dependent action ids
	graph := make(map[string][]string)
	known := make(map[string]bool)

	for _, spec := range specs {
		known[spec.ID] = true
		graph[spec.ID] = []string{}
	}

	// Build edges: if action A depends on B, then B -> A
	for _, spec := range specs {
		for _, dep := range spec.DependsOn {
			if dep == spec.ID {
				return true
			}
			if known[dep] {
				graph[dep] = append(graph[dep], spec.ID)
			}
		}
	}

	const (
		white = 0 // not visited
		gray  = 1 // currently visiting
		black = 2 // visited
	)

	colors := make(map[string]int)

	var dfs func(string) bool
	dfs = func(node string) bool {
		colors[node] = gray

		for _, neighbor := range graph[node] {
			if colors[neighbor] == gray {
				// Back edge found - cycle detected
				return true
			}
			if colors[neighbor] == white && dfs(neighbor) {
				return true
			}
		}

		colors[node] = black
		return false
	}

	// Iterate in declared order so the walk is deterministic
	for _, spec := range specs {
		if colors[spec.ID] == white {
			if dfs(spec.ID) {
				return true
			}
		}
	}

	return false
}
