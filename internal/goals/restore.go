package goals

import (
	"fmt"

	"github.com/harrison/pursuit/internal/models"
)

// Restore rebuilds a Store from previously saved goals. Goals that were
// Active when saved are returned to the schedulable set, and the
// Pending/PausedDependency invariant is re-established for every goal.
func Restore(saved []models.Goal, opts ...Option) (*Store, error) {
	s := NewStore(opts...)

	for i := range saved {
		goal := saved[i].Clone()
		if err := goal.Validate(); err != nil {
			return nil, fmt.Errorf("restore: %w", err)
		}
		if _, dup := s.goals[goal.ID]; dup {
			return nil, fmt.Errorf("restore: duplicate goal id %s", goal.ID)
		}
		s.goals[goal.ID] = &goal
		if goal.Sequence > s.sequence {
			s.sequence = goal.Sequence
		}
	}

	for _, goal := range s.goals {
		for _, dep := range goal.DependencyIDs {
			if _, ok := s.goals[dep]; !ok {
				return nil, fmt.Errorf("restore: goal %s: dependency %s: %w", goal.ID, dep, ErrGoalNotFound)
			}
		}
		for _, dependent := range goal.DependentIDs {
			if _, ok := s.goals[dependent]; !ok {
				return nil, fmt.Errorf("restore: goal %s: dependent %s: %w", goal.ID, dependent, ErrGoalNotFound)
			}
		}
		if goal.Sequence == 0 {
			s.sequence++
			goal.Sequence = s.sequence
		}
	}

	for _, goal := range s.goals {
		if goal.Status == models.GoalActive || goal.Status.IsSchedulable() {
			s.normalizeSchedulable(goal)
		}
	}
	s.rebuildQueue()
	return s, nil
}
