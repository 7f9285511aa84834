package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/harrison/pursuit/internal/models"
)

// DefaultPriority is given to goals that do not declare one.
const DefaultPriority = 5

// GoalsFile is the parsed content of one goals file (or a merged directory).
type GoalsFile struct {
	Name     string
	FilePath string
	Goals    []GoalDef
}

// GoalDef declares one goal and the actions that achieve it. Dependencies
// name other goals by key; the goal store assigns the real IDs at load time.
type GoalDef struct {
	Key         string
	Description string
	Priority    int
	DependsOn   []string
	Metadata    map[string]any
	Source      string
	Actions     []models.ActionSpec
	SourceFile  string
}

// Normalize fills in missing keys (goal-<n> by position) and priorities.
func (f *GoalsFile) Normalize() {
	taken := make(map[string]bool, len(f.Goals))
	for _, g := range f.Goals {
		if g.Key != "" {
			taken[g.Key] = true
		}
	}
	for i := range f.Goals {
		g := &f.Goals[i]
		if g.Key == "" {
			n := i + 1
			key := fmt.Sprintf("goal-%d", n)
			for taken[key] {
				n++
				key = fmt.Sprintf("goal-%d", n)
			}
			g.Key = key
			taken[key] = true
		}
		if g.Priority == 0 {
			g.Priority = DefaultPriority
		}
	}
}

// Goal returns the goal with the given key.
func (f *GoalsFile) Goal(key string) (GoalDef, bool) {
	for _, g := range f.Goals {
		if g.Key == key {
			return g, true
		}
	}
	return GoalDef{}, false
}

// Validate checks the file's structure: unique keys, known and acyclic goal
// dependencies, and well-formed action lists. All problems are reported
// together. Whether action types have handlers is checked by the executor.
func (f *GoalsFile) Validate() error {
	var errs []error
	if len(f.Goals) == 0 {
		return errors.New("goals file declares no goals")
	}

	keys := make(map[string]bool, len(f.Goals))
	for i, g := range f.Goals {
		if g.Key == "" {
			errs = append(errs, fmt.Errorf("goal %d: key is required", i+1))
			continue
		}
		if keys[g.Key] {
			errs = append(errs, fmt.Errorf("goal %s: duplicate key", g.Key))
		}
		keys[g.Key] = true
	}

	descriptions := make(map[string]string, len(f.Goals))
	for _, g := range f.Goals {
		desc := strings.TrimSpace(g.Description)
		if desc == "" {
			errs = append(errs, fmt.Errorf("goal %s: description is required", g.Key))
		} else if other, dup := descriptions[desc]; dup {
			errs = append(errs, fmt.Errorf("goal %s: same description as goal %s", g.Key, other))
		} else {
			descriptions[desc] = g.Key
		}
		for _, dep := range g.DependsOn {
			if dep == g.Key {
				errs = append(errs, fmt.Errorf("goal %s: depends on itself", g.Key))
			} else if !keys[dep] {
				errs = append(errs, fmt.Errorf("goal %s: depends on unknown goal %q", g.Key, dep))
			}
		}
		errs = append(errs, validateActions(g)...)
	}

	if len(errs) == 0 {
		if _, err := f.Ordered(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func validateActions(g GoalDef) []error {
	var errs []error
	ids := make(map[string]bool, len(g.Actions))
	for i := range g.Actions {
		spec := g.Actions[i]
		if err := spec.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("goal %s: %w", g.Key, err))
			continue
		}
		if ids[spec.ID] {
			errs = append(errs, fmt.Errorf("goal %s: duplicate action id %s", g.Key, spec.ID))
		}
		ids[spec.ID] = true
	}
	if len(errs) == 0 && models.HasCyclicDependencies(g.Actions) {
		errs = append(errs, fmt.Errorf("goal %s: circular action dependencies", g.Key))
	}
	return errs
}

// Ordered returns the goals so that every goal follows the goals it depends
// on, keeping declaration order otherwise.
func (f *GoalsFile) Ordered() ([]GoalDef, error) {
	placed := make(map[string]bool, len(f.Goals))
	ordered := make([]GoalDef, 0, len(f.Goals))

	for len(ordered) < len(f.Goals) {
		progressed := false
		for _, g := range f.Goals {
			if placed[g.Key] {
				continue
			}
			ready := true
			for _, dep := range g.DependsOn {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				placed[g.Key] = true
				ordered = append(ordered, g)
				progressed = true
			}
		}
		if !progressed {
			var stuck []string
			for _, g := range f.Goals {
				if !placed[g.Key] {
					stuck = append(stuck, g.Key)
				}
			}
			return nil, fmt.Errorf("circular or unresolved goal dependencies among: %s", strings.Join(stuck, ", "))
		}
	}
	return ordered, nil
}
