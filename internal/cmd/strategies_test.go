package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harrison/pursuit/internal/learning"
	"github.com/harrison/pursuit/internal/models"
	"github.com/harrison/pursuit/internal/recovery"
)

func seedStrategies(t *testing.T, dbPath string) {
	t.Helper()
	store, err := learning.NewStore(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	analyzer := recovery.NewAnalyzer(recovery.WithStore(store))
	ctx := context.Background()
	outcomes := []struct {
		failure  models.FailureType
		strategy models.RecoveryStrategy
		ok       bool
	}{
		{models.FailureNetworkError, models.StrategyRetryWithDelay, true},
		{models.FailureNetworkError, models.StrategyRetryWithDelay, true},
		{models.FailureNetworkError, models.StrategySimplifyApproach, false},
		{models.FailureToolUnavailable, models.StrategyUseAlternativeTool, true},
	}
	for _, o := range outcomes {
		if err := analyzer.RecordOutcome(ctx, o.failure, o.strategy, o.ok); err != nil {
			t.Fatalf("record outcome: %v", err)
		}
	}
}

func TestStrategiesCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "strategies.db")
	seedStrategies(t, dbPath)

	output, err := execute(t, "strategies", "--db-path", dbPath)
	if err != nil {
		t.Fatalf("strategies error = %v", err)
	}

	for _, want := range []string{"FAILURE TYPE", "retry_with_delay", "simplify_approach", "use_alternative_tool", "0.680", "0.400"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
	if strings.Contains(output, "Recent outcomes") {
		t.Error("recent outcomes are only listed with --recent")
	}

	// the strategy a failure type would receive is marked
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "retry_with_delay") && !strings.HasPrefix(line, "*") {
			t.Errorf("best strategy not marked: %q", line)
		}
		if strings.Contains(line, "simplify_approach") && strings.HasPrefix(line, "*") {
			t.Errorf("losing strategy marked: %q", line)
		}
	}

	output, err = execute(t, "strategies", "--db-path", dbPath, "--recent", "2")
	if err != nil {
		t.Fatalf("strategies --recent error = %v", err)
	}
	if got := strings.Count(output, "success") + strings.Count(output, "failure"); got != 2 {
		t.Errorf("expected 2 recent outcomes, got %d:\n%s", got, output)
	}
}

func TestStrategiesCommandEmpty(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "missing.db")

	output, err := execute(t, "strategies", "--db-path", dbPath)
	if err != nil {
		t.Fatalf("strategies error = %v", err)
	}
	if !strings.Contains(output, "No strategy data recorded yet") {
		t.Errorf("unexpected output:\n%s", output)
	}

	cfg := writeFile(t, t.TempDir(), "config.yaml", "recovery:\n  db_path: \"\"\n")
	output, err = execute(t, "strategies", "--config", cfg)
	if err != nil {
		t.Fatalf("strategies error = %v", err)
	}
	if !strings.Contains(output, "kept in memory only") {
		t.Errorf("unexpected output:\n%s", output)
	}
}

func TestStrategiesClear(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "strategies.db")
	seedStrategies(t, dbPath)

	output, err := execute(t, "strategies", "--db-path", dbPath, "--clear")
	if err != nil {
		t.Fatalf("strategies --clear error = %v", err)
	}
	if !strings.Contains(output, "Operation cancelled") {
		t.Errorf("clear without confirmation should be cancelled:\n%s", output)
	}

	if _, err := execute(t, "strategies", "--db-path", dbPath, "--clear", "--yes"); err != nil {
		t.Fatalf("strategies --clear --yes error = %v", err)
	}
	output, err = execute(t, "strategies", "--db-path", dbPath)
	if err != nil {
		t.Fatalf("strategies error = %v", err)
	}
	if !strings.Contains(output, "No strategy data recorded yet") {
		t.Errorf("estimates should be gone:\n%s", output)
	}
}

func TestConfirmAction(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"y", true},
	}
	for _, tt := range tests {
		if got := confirmAction(strings.NewReader(tt.input), new(bytes.Buffer)); got != tt.want {
			t.Errorf("confirmAction(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
