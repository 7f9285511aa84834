package executor

import (
	"fmt"
	"sort"

	"github.com/harrison/pursuit/internal/models"
)

const (
	// DefaultMaxConcurrency is the default maximum number of concurrent actions per plan
	DefaultMaxConcurrency = 4
)

// DependencyGraph represents a directed graph of action dependencies
type DependencyGraph struct {
	Actions  map[string]*models.ActionSpec
	Order    map[string]int      // action id -> declared position
	Edges    map[string][]string // action -> actions that depend on it (prerequisite -> dependents)
	InDegree map[string]int      // action -> number of dependencies
}

// WithReferenceDependencies returns copies of specs in which every action
// referenced by a param is also listed in DependsOn. A reference can only be
// resolved after its target has completed, so it is a dependency in all but name.
func WithReferenceDependencies(specs []models.ActionSpec) []models.ActionSpec {
	out := make([]models.ActionSpec, len(specs))
	for i, spec := range specs {
		spec = spec.Clone()
		for _, name := range sortedParamNames(spec.Params) {
			p := spec.Params[name]
			if !p.IsReference() {
				continue
			}
			if !containsID(spec.DependsOn, p.Ref.ActionID) {
				spec.DependsOn = append(spec.DependsOn, p.Ref.ActionID)
			}
		}
		out[i] = spec
	}
	return out
}

// ValidateSpecs checks a batch of action specs: ids are unique, every type is
// supported, dependency and reference ids resolve within the batch and the
// dependency graph is acyclic. All problems are reported together.
func ValidateSpecs(specs []models.ActionSpec, supports func(actionType string) bool) error {
	verr := &ValidationError{}
	ids := make(map[string]bool, len(specs))

	for i := range specs {
		spec := &specs[i]
		if err := spec.Validate(); err != nil {
			verr.add("action #%d: %v", i+1, err)
			continue
		}
		if ids[spec.ID] {
			verr.add("action %s: duplicate action id", spec.ID)
		}
		ids[spec.ID] = true
		if supports != nil && !supports(spec.Type) {
			verr.add("action %s: unknown action type %q", spec.ID, spec.Type)
		}
		for _, alt := range spec.Alternatives {
			if supports != nil && !supports(alt) {
				verr.add("action %s: unknown alternative type %q", spec.ID, alt)
			}
		}
	}

	for _, spec := range specs {
		if spec.ID == "" {
			continue
		}
		for _, dep := range spec.DependsOn {
			if !ids[dep] {
				verr.add("action %s: depends on non-existent action %s", spec.ID, dep)
			}
		}
		for _, name := range sortedParamNames(spec.Params) {
			p := spec.Params[name]
			if p.Kind == models.ParamReference && p.Ref == nil {
				verr.add("action %s: param %q: reference without target", spec.ID, name)
				continue
			}
			if !p.IsReference() {
				continue
			}
			if p.Ref.ActionID == spec.ID {
				verr.add("action %s: param %q references its own result", spec.ID, name)
			} else if !ids[p.Ref.ActionID] {
				verr.add("action %s: param %q references non-existent action %s", spec.ID, name, p.Ref.ActionID)
			}
		}
	}

	if len(verr.Problems) == 0 && models.HasCyclicDependencies(WithReferenceDependencies(specs)) {
		verr.add("circular dependency detected")
	}

	if len(verr.Problems) > 0 {
		return verr
	}
	return nil
}

// BuildDependencyGraph constructs a dependency graph from a list of action specs
func BuildDependencyGraph(specs []models.ActionSpec) *DependencyGraph {
	g := &DependencyGraph{
		Actions:  make(map[string]*models.ActionSpec),
		Order:    make(map[string]int),
		Edges:    make(map[string][]string),
		InDegree: make(map[string]int),
	}

	for i := range specs {
		g.Actions[specs[i].ID] = &specs[i]
		g.Order[specs[i].ID] = i
		g.InDegree[specs[i].ID] = 0
	}

	// Only add edges for valid dependencies
	for _, spec := range specs {
		for _, dep := range spec.DependsOn {
			if _, exists := g.Actions[dep]; !exists {
				// Skip invalid dependencies - they will be caught by validation
				continue
			}
			// dep -> spec (dep must complete before spec)
			g.Edges[dep] = append(g.Edges[dep], spec.ID)
			g.InDegree[spec.ID]++
		}
	}

	return g
}

// CalculateLevels groups actions into levels using Kahn's algorithm.
// Actions with no dependencies form level 1, actions depending only on level 1
// form level 2, and so on. It is used to preview how a plan will fan out.
func CalculateLevels(specs []models.ActionSpec) ([][]string, error) {
	if len(specs) == 0 {
		return [][]string{}, nil
	}

	graph := BuildDependencyGraph(WithReferenceDependencies(specs))

	inDegree := make(map[string]int)
	for k, v := range graph.InDegree {
		inDegree[k] = v
	}

	var levels [][]string
	for len(inDegree) > 0 {
		var current []string
		for id, degree := range inDegree {
			if degree == 0 {
				current = append(current, id)
			}
		}

		if len(current) == 0 {
			return nil, fmt.Errorf("circular dependency detected")
		}

		// Keep declared order within a level
		sort.Slice(current, func(i, j int) bool {
			return graph.Order[current[i]] < graph.Order[current[j]]
		})
		levels = append(levels, current)

		for _, id := range current {
			delete(inDegree, id)
			for _, dependent := range graph.Edges[id] {
				if _, exists := inDegree[dependent]; exists {
					inDegree[dependent]--
				}
			}
		}
	}

	return levels, nil
}

// checkSequentialOrder returns an error naming the first action that depends
// on an action declared after it. Sequential mode cannot run such plans.
func checkSequentialOrder(actions []*models.Action) error {
	position := make(map[string]int, len(actions))
	for i, a := range actions {
		position[a.ID] = i
	}
	for i, a := range actions {
		for _, dep := range a.DependsOn {
			if pos, ok := position[dep]; ok && pos > i {
				return fmt.Errorf("action %s depends on %s which is declared later; sequential mode requires dependencies to come first", a.ID, dep)
			}
		}
	}
	return nil
}

func sortedParamNames(params map[string]models.Param) []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
