// Package planning provides the plan generator backed by a goals file: every
// goal's action list is declared up front and handed back on request.
package planning

import (
	"context"
	"errors"
	"fmt"

	"github.com/harrison/pursuit/internal/executor"
	"github.com/harrison/pursuit/internal/goals"
	"github.com/harrison/pursuit/internal/models"
	"github.com/harrison/pursuit/internal/parser"
)

const (
	// MetadataKey is the goal metadata entry holding the goals-file key.
	MetadataKey = "key"
	// ContextSimplify asks for a reduced plan when set to true.
	ContextSimplify = "simplify"
)

// ErrUnknownGoal is returned for goals that were not loaded from the file.
var ErrUnknownGoal = errors.New("no plan declared for goal")

// StaticGenerator serves the action lists of a parsed goals file.
type StaticGenerator struct {
	byKey map[string]parser.GoalDef
}

// NewStaticGenerator indexes file's goals by key. The file should already
// have been normalised and validated.
func NewStaticGenerator(file *parser.GoalsFile) *StaticGenerator {
	g := &StaticGenerator{byKey: make(map[string]parser.GoalDef, len(file.Goals))}
	for _, def := range file.Goals {
		g.byKey[def.Key] = def
	}
	return g
}

// Load adds every goal of the file to store, dependencies first, and returns
// the goal IDs by key. Each goal's metadata records its key so plans can be
// found again after a snapshot restore.
func Load(store *goals.Store, file *parser.GoalsFile) (map[string]string, error) {
	ordered, err := file.Ordered()
	if err != nil {
		return nil, err
	}

	ids := make(map[string]string, len(ordered))
	for _, def := range ordered {
		deps := make([]string, 0, len(def.DependsOn))
		for _, key := range def.DependsOn {
			deps = append(deps, ids[key])
		}

		metadata := make(map[string]any, len(def.Metadata)+1)
		for k, v := range def.Metadata {
			metadata[k] = v
		}
		metadata[MetadataKey] = def.Key

		source := def.Source
		if source == "" {
			source = def.SourceFile
		}

		id, err := store.AddGoal(def.Description, def.Priority, deps, metadata, source)
		if err != nil {
			return nil, fmt.Errorf("goal %s: %w", def.Key, err)
		}
		ids[def.Key] = id
	}
	return ids, nil
}

// GeneratePlan returns the declared actions of goal. With the simplify hint
// set, only critical actions and what they depend on are kept; a goal with
// no critical action keeps its full list.
func (g *StaticGenerator) GeneratePlan(ctx context.Context, goal models.Goal, planCtx map[string]any) ([]models.ActionSpec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, _ := goal.Metadata[MetadataKey].(string)
	def, ok := g.byKey[key]
	if !ok {
		return nil, fmt.Errorf("goal %s (%q): %w", goal.ID, key, ErrUnknownGoal)
	}

	specs := make([]models.ActionSpec, len(def.Actions))
	for i, spec := range def.Actions {
		specs[i] = spec.Clone()
	}

	if simplify, _ := planCtx[ContextSimplify].(bool); simplify {
		specs = Simplify(specs)
	}
	return specs, nil
}

// Simplify drops every action that no critical action needs, directly or
// through dependencies and references. Order is preserved.
func Simplify(specs []models.ActionSpec) []models.ActionSpec {
	withRefs := executor.WithReferenceDependencies(specs)
	byID := make(map[string]models.ActionSpec, len(withRefs))
	for _, spec := range withRefs {
		byID[spec.ID] = spec
	}

	keep := make(map[string]bool)
	var mark func(id string)
	mark = func(id string) {
		if keep[id] {
			return
		}
		spec, ok := byID[id]
		if !ok {
			return
		}
		keep[id] = true
		for _, dep := range spec.DependsOn {
			mark(dep)
		}
	}
	for _, spec := range specs {
		if spec.Critical {
			mark(spec.ID)
		}
	}
	if len(keep) == 0 {
		return specs
	}

	out := make([]models.ActionSpec, 0, len(keep))
	for _, spec := range specs {
		if keep[spec.ID] {
			out = append(out, spec)
		}
	}
	return out
}
