package cmd

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/harrison/pursuit/internal/goals"
	"github.com/harrison/pursuit/internal/models"
	"github.com/harrison/pursuit/internal/snapshot"
)

func TestStatusFromRedisSnapshot(t *testing.T) {
	mr := miniredis.RunT(t)
	dir := t.TempDir()
	cfg := writeConfig(t, dir, fmt.Sprintf("snapshot:\n  backend: redis\n  redis_addr: %s\n  redis_key: test:snapshot\n", mr.Addr()))

	store := goals.NewStore()
	okID, err := store.AddGoal("Ship it", 8, nil, nil, "test")
	if err != nil {
		t.Fatal(err)
	}
	badID, err := store.AddGoal("Break it", 3, nil, nil, "test")
	if err != nil {
		t.Fatal(err)
	}
	for _, step := range []struct {
		id     string
		status models.GoalStatus
		reason string
	}{
		{okID, models.GoalCompletedSuccess, ""},
		{badID, models.GoalFailedExecution, "critical action x failed"},
	} {
		if _, ok := store.NextActionableGoal(); !ok {
			t.Fatal("expected an actionable goal")
		}
		if err := store.UpdateGoalStatus(step.id, step.status, step.reason); err != nil {
			t.Fatal(err)
		}
	}

	ctx := context.Background()
	backend, err := snapshot.NewRedisBackend(ctx, snapshot.RedisConfig{Address: mr.Addr(), Key: "test:snapshot"})
	if err != nil {
		t.Fatal(err)
	}
	defer backend.Close()
	if err := backend.Save(ctx, snapshot.Capture(store, nil, time.Now())); err != nil {
		t.Fatal(err)
	}

	output, err := execute(t, "status", "--config", cfg)
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	for _, want := range []string{
		"2 goal(s), 0 plan(s)",
		"Ship it",
		"Break it",
		"critical action x failed",
		"completed_success    1",
		"failed_execution     1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
	if strings.Contains(output, okID) {
		t.Error("goal ids are shortened unless --all is set")
	}

	output, err = execute(t, "status", "--config", cfg, "--all")
	if err != nil {
		t.Fatalf("status --all error = %v", err)
	}
	if !strings.Contains(output, okID) {
		t.Errorf("--all should print full ids:\n%s", output)
	}
}

func TestStatusWithoutSnapshot(t *testing.T) {
	dir := t.TempDir()

	output, err := execute(t, "status", "--config", writeConfig(t, dir, ""))
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	if !strings.Contains(output, "No snapshot found") {
		t.Errorf("unexpected output:\n%s", output)
	}

	output, err = execute(t, "status", "--config", writeConfig(t, dir, "snapshot:\n  backend: none\n"))
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	if !strings.Contains(output, "Snapshots are disabled") {
		t.Errorf("unexpected output:\n%s", output)
	}
}

func TestStatusRedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := writeConfig(t, t.TempDir(), fmt.Sprintf("snapshot:\n  backend: redis\n  redis_addr: %s\n", addr))
	if _, err := execute(t, "status", "--config", cfg); err == nil {
		t.Error("expected an error when redis is unreachable")
	}
}
