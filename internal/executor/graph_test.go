package executor

import (
	"reflect"
	"strings"
	"testing"

	"github.com/harrison/pursuit/internal/models"
)

func supportsEcho(t string) bool { return t == "echo" }

func TestValidateSpecs(t *testing.T) {
	tests := []struct {
		name    string
		specs   []models.ActionSpec
		wantErr string
	}{
		{
			name: "valid specs",
			specs: []models.ActionSpec{
				{ID: "1", Type: "echo"},
				{ID: "2", Type: "echo", DependsOn: []string{"1"}},
			},
		},
		{
			name:  "empty spec list",
			specs: []models.ActionSpec{},
		},
		{
			name:    "missing id",
			specs:   []models.ActionSpec{{Type: "echo"}},
			wantErr: "action id is required",
		},
		{
			name:    "non-existent dependency",
			specs:   []models.ActionSpec{{ID: "1", Type: "echo", DependsOn: []string{"999"}}},
			wantErr: "non-existent action 999",
		},
		{
			name:    "duplicate ids",
			specs:   []models.ActionSpec{{ID: "1", Type: "echo"}, {ID: "1", Type: "echo"}},
			wantErr: "duplicate action id",
		},
		{
			name:    "unsupported type",
			specs:   []models.ActionSpec{{ID: "1", Type: "warp"}},
			wantErr: `unknown action type "warp"`,
		},
		{
			name:    "unsupported alternative",
			specs:   []models.ActionSpec{{ID: "1", Type: "echo", Alternatives: []string{"warp"}}},
			wantErr: `unknown alternative type "warp"`,
		},
		{
			name: "self reference",
			specs: []models.ActionSpec{{ID: "1", Type: "echo",
				Params: map[string]models.Param{"x": models.Ref("1", "")}}},
			wantErr: "references its own result",
		},
		{
			name: "cycle through reference",
			specs: []models.ActionSpec{
				{ID: "1", Type: "echo", DependsOn: []string{"2"}},
				{ID: "2", Type: "echo", Params: map[string]models.Param{"x": models.Ref("1", "out")}},
			},
			wantErr: "circular dependency",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSpecs(tt.specs, supportsEcho)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateSpecs() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateSpecs() expected error containing %q", tt.wantErr)
			}
			if !IsValidationError(err) {
				t.Errorf("expected ValidationError, got %T", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateSpecsReportsEveryProblem(t *testing.T) {
	err := ValidateSpecs([]models.ActionSpec{
		{ID: "1", Type: "warp"},
		{ID: "2", Type: "echo", DependsOn: []string{"ghost"}},
	}, supportsEcho)

	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(ve.Problems) != 2 {
		t.Errorf("expected 2 problems, got %d: %v", len(ve.Problems), ve.Problems)
	}
}

func TestBuildDependencyGraph(t *testing.T) {
	specs := []models.ActionSpec{
		{ID: "1"},
		{ID: "2", DependsOn: []string{"1"}},
		{ID: "3", DependsOn: []string{"1"}},
	}

	graph := BuildDependencyGraph(specs)

	if len(graph.Actions) != 3 {
		t.Errorf("Expected 3 actions, got %d", len(graph.Actions))
	}
	if graph.InDegree["1"] != 0 {
		t.Errorf("Action 1 should have in-degree 0, got %d", graph.InDegree["1"])
	}
	if graph.InDegree["2"] != 1 || graph.InDegree["3"] != 1 {
		t.Errorf("Actions 2 and 3 should have in-degree 1, got %d and %d", graph.InDegree["2"], graph.InDegree["3"])
	}
	if !reflect.DeepEqual(graph.Edges["1"], []string{"2", "3"}) {
		t.Errorf("Edges[1] = %v, want [2 3]", graph.Edges["1"])
	}
}

func TestCalculateLevels(t *testing.T) {
	tests := []struct {
		name    string
		specs   []models.ActionSpec
		want    [][]string
		wantErr bool
	}{
		{
			name: "diamond",
			specs: []models.ActionSpec{
				{ID: "1"},
				{ID: "2", DependsOn: []string{"1"}},
				{ID: "3", DependsOn: []string{"1"}},
				{ID: "4", DependsOn: []string{"2", "3"}},
			},
			want: [][]string{{"1"}, {"2", "3"}, {"4"}},
		},
		{
			name: "independent actions keep declared order",
			specs: []models.ActionSpec{
				{ID: "b"},
				{ID: "a"},
				{ID: "c"},
			},
			want: [][]string{{"b", "a", "c"}},
		},
		{
			name: "reference adds a level",
			specs: []models.ActionSpec{
				{ID: "read"},
				{ID: "write", Params: map[string]models.Param{"content": models.Ref("read", "")}},
			},
			want: [][]string{{"read"}, {"write"}},
		},
		{
			name: "cycle",
			specs: []models.ActionSpec{
				{ID: "1", DependsOn: []string{"2"}},
				{ID: "2", DependsOn: []string{"1"}},
			},
			wantErr: true,
		},
		{
			name:  "empty",
			specs: nil,
			want:  [][]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateLevels(tt.specs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CalculateLevels() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CalculateLevels() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckSequentialOrder(t *testing.T) {
	backward := []*models.Action{{ID: "1"}, {ID: "2", DependsOn: []string{"1"}}}
	if err := checkSequentialOrder(backward); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	forward := []*models.Action{{ID: "1", DependsOn: []string{"2"}}, {ID: "2"}}
	if err := checkSequentialOrder(forward); err == nil {
		t.Error("expected forward dependency to be rejected")
	}
}
