// Package goals owns Goal entities and schedules them by priority and
// dependency readiness.
//
// All mutations pass through a Store, which guards its goal map and ready
// queue with a single mutex. Callers receive copies; they never hold
// pointers into store state.
package goals

import (
	"container/heap"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/pursuit/internal/models"
)

const (
	// DefaultMinPriority is the lowest legal goal priority.
	DefaultMinPriority = 1
	// DefaultMaxPriority is the highest legal goal priority.
	DefaultMaxPriority = 10
)

var (
	// ErrGoalNotFound is returned when an id does not name a known goal.
	ErrGoalNotFound = errors.New("goal not found")
	// ErrCycle is returned when a dependency edge would close a cycle.
	ErrCycle = errors.New("dependency cycle")
	// ErrMissingReason is returned when a failure status is set without a reason.
	ErrMissingReason = errors.New("failure status requires a reason")
	// ErrInvalidStatus is returned for statuses outside the goal lifecycle.
	ErrInvalidStatus = errors.New("invalid goal status")
	// ErrGoalTerminal is returned when a terminal goal would be moved again.
	ErrGoalTerminal = errors.New("goal already terminal")
	// ErrEmptyDescription is returned when a goal is added without a description.
	ErrEmptyDescription = errors.New("goal description is required")
)

// Store holds every goal and the priority queue used to pick the next one.
type Store struct {
	mu          sync.Mutex
	goals       map[string]*models.Goal
	queue       goalQueue
	queued      map[string]*queueItem
	minPriority int
	maxPriority int
	sequence    int64
	now         func() time.Time
	newID       func() string
}

// Option configures a Store.
type Option func(*Store)

// WithPriorityRange overrides the legal priority range. Invalid ranges are ignored.
func WithPriorityRange(min, max int) Option {
	return func(s *Store) {
		if min <= max {
			s.minPriority = min
			s.maxPriority = max
		}
	}
}

// WithClock replaces time.Now, mainly for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator replaces the uuid-based id generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewStore creates an empty goal store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		goals:       make(map[string]*models.Goal),
		queued:      make(map[string]*queueItem),
		minPriority: DefaultMinPriority,
		maxPriority: DefaultMaxPriority,
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ClampPriority forces p into the store's legal priority range.
func (s *Store) ClampPriority(p int) int {
	if p < s.minPriority {
		return s.minPriority
	}
	if p > s.maxPriority {
		return s.maxPriority
	}
	return p
}

// AddGoal creates a goal and queues it. If a non-terminal goal with the same
// description already exists, that goal's priority is raised to the higher of
// the two and its id is returned instead.
func (s *Store) AddGoal(description string, priority int, dependencies []string, metadata map[string]any, source string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, _, err := s.addGoalLocked(description, priority, dependencies, metadata, source)
	return id, err
}

// AddSubgoal adds a goal that parentID depends on. The parent is paused until
// the subgoal completes successfully.
func (s *Store) AddSubgoal(parentID, description string, priority int, metadata map[string]any, source string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.goals[parentID]
	if !ok {
		return "", fmt.Errorf("parent %s: %w", parentID, ErrGoalNotFound)
	}
	if parent.Status.IsTerminal() {
		return "", fmt.Errorf("parent %s: %w", parentID, ErrGoalTerminal)
	}

	id, created, err := s.addGoalLocked(description, priority, nil, metadata, source)
	if err != nil {
		return "", err
	}
	if err := s.addDependencyLocked(parentID, id); err != nil {
		return "", err
	}

	child := s.goals[id]
	if created {
		child.ParentID = parentID
	}
	if !containsString(parent.SubgoalIDs, id) {
		parent.SubgoalIDs = append(parent.SubgoalIDs, id)
	}
	return id, nil
}

func (s *Store) addGoalLocked(description string, priority int, dependencies []string, metadata map[string]any, source string) (string, bool, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return "", false, ErrEmptyDescription
	}
	priority = s.ClampPriority(priority)

	if existing := s.findOpenByDescription(description); existing != nil {
		if priority > existing.Priority {
			existing.Priority = priority
			existing.UpdatedAt = s.now()
			if item, ok := s.queued[existing.ID]; ok {
				item.priority = priority
				heap.Fix(&s.queue, item.index)
			}
		}
		return existing.ID, false, nil
	}

	deps := make([]string, 0, len(dependencies))
	for _, dep := range dependencies {
		if _, ok := s.goals[dep]; !ok {
			return "", false, fmt.Errorf("dependency %s: %w", dep, ErrGoalNotFound)
		}
		if !containsString(deps, dep) {
			deps = append(deps, dep)
		}
	}

	now := s.now()
	s.sequence++
	goal := &models.Goal{
		ID:            s.newID(),
		Description:   description,
		Priority:      priority,
		CreatedAt:     now,
		UpdatedAt:     now,
		Sequence:      s.sequence,
		DependencyIDs: deps,
		Metadata:      copyMetadata(metadata),
		Source:        source,
	}
	if s.dependenciesSatisfied(goal) {
		goal.Status = models.GoalPending
	} else {
		goal.Status = models.GoalPausedDependency
	}

	s.goals[goal.ID] = goal
	for _, dep := range deps {
		s.goals[dep].DependentIDs = append(s.goals[dep].DependentIDs, goal.ID)
	}
	s.enqueue(goal)

	return goal.ID, true, nil
}

// AddDependency records that goalID depends on dependsOnID. Edges that would
// create a cycle are rejected and leave both goals unchanged.
func (s *Store) AddDependency(goalID, dependsOnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addDependencyLocked(goalID, dependsOnID)
}

func (s *Store) addDependencyLocked(goalID, dependsOnID string) error {
	goal, ok := s.goals[goalID]
	if !ok {
		return fmt.Errorf("goal %s: %w", goalID, ErrGoalNotFound)
	}
	dependsOn, ok := s.goals[dependsOnID]
	if !ok {
		return fmt.Errorf("dependency %s: %w", dependsOnID, ErrGoalNotFound)
	}
	if goalID == dependsOnID {
		return fmt.Errorf("goal %s cannot depend on itself: %w", goalID, ErrCycle)
	}
	if containsString(goal.DependencyIDs, dependsOnID) {
		return nil
	}
	if s.reachable(dependsOnID, goalID) {
		return fmt.Errorf("goal %s depends on %s: %w", goalID, dependsOnID, ErrCycle)
	}

	goal.DependencyIDs = append(goal.DependencyIDs, dependsOnID)
	dependsOn.DependentIDs = append(dependsOn.DependentIDs, goalID)
	goal.UpdatedAt = s.now()

	if goal.Status == models.GoalPending && dependsOn.Status != models.GoalCompletedSuccess {
		goal.Status = models.GoalPausedDependency
	}
	return nil
}

// reachable reports whether target can be reached from start by following
// dependency edges depth-first.
func (s *Store) reachable(start, target string) bool {
	visited := make(map[string]bool)
	var dfs func(string) bool
	dfs = func(id string) bool {
		if id == target {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		goal, ok := s.goals[id]
		if !ok {
			return false
		}
		for _, dep := range goal.DependencyIDs {
			if dfs(dep) {
				return true
			}
		}
		return false
	}
	return dfs(start)
}

// NextActionableGoal pops the highest-priority goal whose dependencies have
// all completed successfully, marks it Active and returns a copy. Candidates
// that are not yet actionable are pushed back. It never blocks; ok is false
// when nothing is ready.
func (s *Store) NextActionableGoal() (goal models.Goal, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deferred []*queueItem
	defer func() {
		for _, item := range deferred {
			heap.Push(&s.queue, item)
			s.queued[item.id] = item
		}
	}()

	for s.queue.Len() > 0 {
		item := heap.Pop(&s.queue).(*queueItem)
		delete(s.queued, item.id)

		candidate, exists := s.goals[item.id]
		if !exists || !candidate.Status.IsSchedulable() {
			// stale entry
			continue
		}

		if !s.dependenciesSatisfied(candidate) {
			if candidate.Status != models.GoalPausedDependency {
				candidate.Status = models.GoalPausedDependency
				candidate.UpdatedAt = s.now()
			}
			deferred = append(deferred, item)
			continue
		}

		candidate.Status = models.GoalActive
		candidate.UpdatedAt = s.now()
		return candidate.Clone(), true
	}

	return models.Goal{}, false
}

// UpdateGoalStatus moves a goal to status. Failure statuses require a reason.
// Completing a goal successfully unblocks every dependent whose remaining
// dependencies are satisfied; any terminal change rebuilds the queue.
func (s *Store) UpdateGoalStatus(id string, status models.GoalStatus, failureReason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	goal, ok := s.goals[id]
	if !ok {
		return fmt.Errorf("goal %s: %w", id, ErrGoalNotFound)
	}
	if goal.Status.IsTerminal() {
		return fmt.Errorf("goal %s is %s: %w", id, goal.Status, ErrGoalTerminal)
	}
	failureReason = strings.TrimSpace(failureReason)
	if status.IsFailure() && failureReason == "" {
		return fmt.Errorf("goal %s -> %s: %w", id, status, ErrMissingReason)
	}

	goal.Status = status
	goal.UpdatedAt = s.now()
	switch {
	case status.IsFailure() || status == models.GoalCancelled:
		goal.FailureReason = failureReason
	case status == models.GoalCompletedSuccess || status == models.GoalCompletedNoAction:
		goal.FailureReason = ""
	}

	switch status {
	case models.GoalPending, models.GoalPausedDependency:
		s.normalizeSchedulable(goal)
		s.enqueue(goal)
	case models.GoalActive:
		s.dequeue(goal.ID)
	case models.GoalCompletedSuccess:
		for _, dependentID := range goal.DependentIDs {
			dependent := s.goals[dependentID]
			if dependent == nil || !dependent.Status.IsSchedulable() {
				continue
			}
			if s.dependenciesSatisfied(dependent) && dependent.Status != models.GoalPending {
				dependent.Status = models.GoalPending
				dependent.UpdatedAt = s.now()
			}
			s.enqueue(dependent)
		}
	}

	if status.IsTerminal() {
		s.rebuildQueue()
	}
	return nil
}

// AttachPlan records planID as the goal's current plan and counts the attempt.
func (s *Store) AttachPlan(goalID, planID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	goal, ok := s.goals[goalID]
	if !ok {
		return fmt.Errorf("goal %s: %w", goalID, ErrGoalNotFound)
	}
	goal.PlanID = planID
	goal.Attempts++
	goal.UpdatedAt = s.now()
	return nil
}

// Annotate sets a metadata key on a goal.
func (s *Store) Annotate(goalID, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	goal, ok := s.goals[goalID]
	if !ok {
		return fmt.Errorf("goal %s: %w", goalID, ErrGoalNotFound)
	}
	if goal.Metadata == nil {
		goal.Metadata = make(map[string]any)
	}
	goal.Metadata[key] = value
	goal.UpdatedAt = s.now()
	return nil
}

// Get returns a copy of the goal with the given id.
func (s *Store) Get(id string) (models.Goal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	goal, ok := s.goals[id]
	if !ok {
		return models.Goal{}, false
	}
	return goal.Clone(), true
}

// List returns copies of every goal in creation order.
func (s *Store) List() []models.Goal {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Goal, 0, len(s.goals))
	for _, goal := range s.goals {
		out = append(out, goal.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Sequence < out[j].Sequence
	})
	return out
}

// Stalled returns the ids of paused goals that can never run: a dependency
// ended in a terminal status other than success, or is itself stalled.
func (s *Store) Stalled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	memo := make(map[string]bool, len(s.goals))
	var stalled []string
	for id := range s.goals {
		if s.stalledLocked(id, memo) {
			stalled = append(stalled, id)
		}
	}
	sort.Strings(stalled)
	return stalled
}

// stalledLocked walks the dependency chain of id. The graph is acyclic.
func (s *Store) stalledLocked(id string, memo map[string]bool) bool {
	if v, ok := memo[id]; ok {
		return v
	}
	goal := s.goals[id]
	result := false
	if goal != nil && goal.Status == models.GoalPausedDependency {
		for _, dep := range goal.DependencyIDs {
			d := s.goals[dep]
			if d == nil {
				continue
			}
			if d.Status.IsTerminal() && d.Status != models.GoalCompletedSuccess {
				result = true
				break
			}
			if s.stalledLocked(dep, memo) {
				result = true
				break
			}
		}
	}
	memo[id] = result
	return result
}

// QueueLen returns the number of entries currently in the ready queue.
func (s *Store) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

func (s *Store) dependenciesSatisfied(goal *models.Goal) bool {
	for _, dep := range goal.DependencyIDs {
		d, ok := s.goals[dep]
		if !ok || d.Status != models.GoalCompletedSuccess {
			return false
		}
	}
	return true
}

// normalizeSchedulable enforces: Pending iff every dependency succeeded.
func (s *Store) normalizeSchedulable(goal *models.Goal) {
	if s.dependenciesSatisfied(goal) {
		goal.Status = models.GoalPending
	} else {
		goal.Status = models.GoalPausedDependency
	}
}

func (s *Store) enqueue(goal *models.Goal) {
	if _, ok := s.queued[goal.ID]; ok {
		return
	}
	item := &queueItem{
		id:        goal.ID,
		priority:  goal.Priority,
		createdAt: goal.CreatedAt,
		sequence:  goal.Sequence,
	}
	heap.Push(&s.queue, item)
	s.queued[goal.ID] = item
}

func (s *Store) dequeue(id string) {
	item, ok := s.queued[id]
	if !ok {
		return
	}
	heap.Remove(&s.queue, item.index)
	delete(s.queued, id)
}

// rebuildQueue discards every entry and re-inserts the schedulable goals.
func (s *Store) rebuildQueue() {
	s.queue = s.queue[:0]
	s.queued = make(map[string]*queueItem)
	for _, goal := range s.goals {
		if goal.Status.IsSchedulable() {
			s.enqueue(goal)
		}
	}
}

func (s *Store) findOpenByDescription(description string) *models.Goal {
	var found *models.Goal
	for _, goal := range s.goals {
		if goal.Status.IsTerminal() || goal.Description != description {
			continue
		}
		if found == nil || goal.Sequence < found.Sequence {
			found = goal
		}
	}
	return found
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func copyMetadata(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
