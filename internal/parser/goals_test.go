package parser

import (
	"strings"
	"testing"

	"github.com/harrison/pursuit/internal/models"
)

func TestNormalize(t *testing.T) {
	file := &GoalsFile{Goals: []GoalDef{
		{Description: "a"},
		{Key: "goal-1", Description: "b", Priority: 2},
		{Description: "c"},
	}}
	file.Normalize()

	keys := []string{file.Goals[0].Key, file.Goals[1].Key, file.Goals[2].Key}
	if keys[0] != "goal-2" || keys[1] != "goal-1" || keys[2] != "goal-3" {
		t.Errorf("keys = %v", keys)
	}
	if file.Goals[0].Priority != DefaultPriority || file.Goals[1].Priority != 2 {
		t.Errorf("priorities not normalised: %+v", file.Goals)
	}
}

func TestValidate(t *testing.T) {
	echo := func(id string, deps ...string) models.ActionSpec {
		return models.ActionSpec{ID: id, Type: "echo", DependsOn: deps}
	}

	tests := []struct {
		name    string
		goals   []GoalDef
		wantErr []string
	}{
		{
			name: "valid",
			goals: []GoalDef{
				{Key: "a", Description: "A", Actions: []models.ActionSpec{echo("x"), echo("y", "x")}},
				{Key: "b", Description: "B", DependsOn: []string{"a"}},
			},
		},
		{
			name:    "duplicate keys",
			goals:   []GoalDef{{Key: "a", Description: "A"}, {Key: "a", Description: "A2"}},
			wantErr: []string{"duplicate key"},
		},
		{
			name:    "duplicate descriptions",
			goals:   []GoalDef{{Key: "a", Description: "Build"}, {Key: "b", Description: " Build "}},
			wantErr: []string{"goal b: same description as goal a"},
		},
		{
			name:    "missing key and description",
			goals:   []GoalDef{{Description: "A"}, {Key: "b"}},
			wantErr: []string{"goal 1: key is required", "goal b: description is required"},
		},
		{
			name: "unknown and self dependency",
			goals: []GoalDef{
				{Key: "a", Description: "A", DependsOn: []string{"ghost"}},
				{Key: "b", Description: "B", DependsOn: []string{"b"}},
			},
			wantErr: []string{`unknown goal "ghost"`, "goal b: depends on itself"},
		},
		{
			name: "goal cycle",
			goals: []GoalDef{
				{Key: "a", Description: "A", DependsOn: []string{"b"}},
				{Key: "b", Description: "B", DependsOn: []string{"a"}},
			},
			wantErr: []string{"circular or unresolved goal dependencies among: a, b"},
		},
		{
			name: "bad actions",
			goals: []GoalDef{
				{Key: "a", Description: "A", Actions: []models.ActionSpec{{ID: "x"}, echo("y"), echo("y")}},
				{Key: "b", Description: "B", Actions: []models.ActionSpec{echo("p", "q"), echo("q", "p")}},
			},
			wantErr: []string{"type is required", "duplicate action id y", "goal b: circular action dependencies"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&GoalsFile{Goals: tt.goals}).Validate()
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() expected error")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q missing %q", err, want)
				}
			}
		})
	}
}

func TestOrderedKeepsDeclarationOrder(t *testing.T) {
	file := &GoalsFile{Goals: []GoalDef{
		{Key: "deploy", DependsOn: []string{"test", "build"}},
		{Key: "docs"},
		{Key: "test", DependsOn: []string{"build"}},
		{Key: "build"},
	}}
	ordered, err := file.Ordered()
	if err != nil {
		t.Fatalf("Ordered() error = %v", err)
	}
	var got []string
	for _, g := range ordered {
		got = append(got, g.Key)
	}
	if strings.Join(got, ",") != "docs,build,test,deploy" {
		t.Errorf("Ordered() = %v", got)
	}
}

func TestGoalLookup(t *testing.T) {
	file := &GoalsFile{Goals: []GoalDef{{Key: "a", Description: "A"}}}
	if g, ok := file.Goal("a"); !ok || g.Description != "A" {
		t.Errorf("Goal(a) = %+v, %v", g, ok)
	}
	if _, ok := file.Goal("b"); ok {
		t.Error("Goal(b) should not be found")
	}
}
