package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/pursuit/internal/executor"
	"github.com/harrison/pursuit/internal/goals"
	"github.com/harrison/pursuit/internal/handlers"
	"github.com/harrison/pursuit/internal/models"
	"github.com/harrison/pursuit/internal/planning"
	"github.com/harrison/pursuit/internal/recovery"
	"github.com/harrison/pursuit/internal/snapshot"
)

type planFunc func(planCtx map[string]any) ([]models.ActionSpec, error)

// fakeGenerator serves plans by goal description and records every request.
type fakeGenerator struct {
	mu    sync.Mutex
	plans map[string]planFunc
	calls []map[string]any
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{plans: make(map[string]planFunc)}
}

func (g *fakeGenerator) static(description string, specs ...models.ActionSpec) {
	g.plans[description] = func(map[string]any) ([]models.ActionSpec, error) { return specs, nil }
}

func (g *fakeGenerator) GeneratePlan(ctx context.Context, goal models.Goal, planCtx map[string]any) ([]models.ActionSpec, error) {
	g.mu.Lock()
	g.calls = append(g.calls, planCtx)
	fn, ok := g.plans[goal.Description]
	g.mu.Unlock()
	if !ok {
		return nil, errors.New("no plan for " + goal.Description)
	}
	return fn(planCtx)
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// recordingLogger keeps the events the orchestrator emits.
type recordingLogger struct {
	mu         sync.Mutex
	started    []string
	strategies []models.RecoveryStrategy
	completed  map[string]models.GoalStatus
	summary    *models.ExecutionSummary
	warnings   []string
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{completed: make(map[string]models.GoalStatus)}
}

func (l *recordingLogger) LogGoalStart(goal models.Goal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = append(l.started, goal.Description)
}
func (l *recordingLogger) LogPlanStart(*models.Plan, models.ExecutionMode) {}
func (l *recordingLogger) LogPlanComplete(*models.Plan)                    {}
func (l *recordingLogger) LogRecovery(_ models.Goal, _ models.FailureType, strategy models.RecoveryStrategy, _ int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.strategies = append(l.strategies, strategy)
}
func (l *recordingLogger) LogGoalComplete(goal models.Goal, _ time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.completed[goal.Description] = goal.Status
}
func (l *recordingLogger) LogSummary(summary models.ExecutionSummary) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.summary = &summary
}
func (l *recordingLogger) LogWarn(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, message)
}

type harness struct {
	store    *goals.Store
	exec     *executor.PlanExecutor
	gen      *fakeGenerator
	analyzer *recovery.Analyzer
	logger   *recordingLogger
	delays   []time.Duration
	orch     *Orchestrator
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	reg := handlers.NewDefaultRegistry()
	reg.MustRegister("flaky", executor.HandlerFunc(func(ctx context.Context, a models.Action) (any, error) {
		return nil, errors.New("exit status 1")
	}))

	h := &harness{
		store:    goals.NewStore(),
		exec:     executor.NewPlanExecutor(reg),
		gen:      newFakeGenerator(),
		analyzer: recovery.NewAnalyzer(),
		logger:   newRecordingLogger(),
	}
	base := []Option{
		WithAnalyzer(h.analyzer),
		WithLogger(h.logger),
		WithMode(models.ModeSequential),
		WithRetryDelay(10 * time.Millisecond),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			h.delays = append(h.delays, d)
			return ctx.Err()
		}),
	}
	h.orch = New(h.store, h.exec, h.gen, append(base, opts...)...)
	return h
}

func (h *harness) addGoal(t *testing.T, description string, priority int, deps ...string) string {
	t.Helper()
	id, err := h.store.AddGoal(description, priority, deps, nil, "test")
	require.NoError(t, err)
	return id
}

func echo(id string) models.ActionSpec {
	return models.ActionSpec{ID: id, Type: handlers.TypeEcho, Critical: true,
		Params: models.LiteralParams(map[string]any{"message": id})}
}

func failing(id string, params map[string]any) models.ActionSpec {
	return models.ActionSpec{ID: id, Type: handlers.TypeFail, Critical: true, Params: models.LiteralParams(params)}
}

func TestRunCompletesGoalsInDependencyOrder(t *testing.T) {
	h := newHarness(t)
	build := h.addGoal(t, "build", 3)
	h.addGoal(t, "deploy", 9, build)
	h.addGoal(t, "docs", 5)
	h.gen.static("build", echo("compile"))
	h.gen.static("deploy", echo("push"))
	h.gen.static("docs")

	summary, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"docs", "build", "deploy"}, h.logger.started)
	assert.Equal(t, 3, summary.TotalGoals)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, models.GoalCompletedNoAction, h.logger.completed["docs"])
	assert.Equal(t, models.GoalCompletedSuccess, h.logger.completed["deploy"])
	require.NotNil(t, h.logger.summary)

	goal, _ := h.store.Get(build)
	assert.Equal(t, 1, goal.Attempts)
	plan, ok := h.exec.GetPlan(goal.PlanID)
	require.True(t, ok)
	assert.Equal(t, models.PlanCompletedSuccess, plan.Status)
}

func TestRunNextIdle(t *testing.T) {
	h := newHarness(t)
	_, ok, err := h.orch.RunNext(context.Background())
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestRetryWithDelayRecovers(t *testing.T) {
	h := newHarness(t)
	id := h.addGoal(t, "fetch", 5)
	h.gen.static("fetch", failing("download", map[string]any{"times": 1, "message": "connection reset by peer"}))

	summary, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Recoveries)
	assert.Equal(t, []models.RecoveryStrategy{models.StrategyRetryWithDelay}, h.logger.strategies)
	assert.Equal(t, []time.Duration{10 * time.Millisecond}, h.delays)

	// the retry's success is recorded once the second attempt finishes
	assert.InDelta(t, 0.6, h.analyzer.Estimate(models.FailureNetworkError, models.StrategyRetryWithDelay), 1e-9)

	goal, _ := h.store.Get(id)
	assert.Equal(t, models.GoalCompletedSuccess, goal.Status)
	assert.Equal(t, 2, goal.Attempts)
	assert.Equal(t, string(models.FailureNetworkError), goal.Metadata[MetaLastFailure])
}

func TestRecoveryExhaustedForcesGracefulAbort(t *testing.T) {
	h := newHarness(t, WithMaxAttempts(2))
	id := h.addGoal(t, "doomed", 5)
	h.gen.static("doomed", failing("step", map[string]any{"message": "connection refused"}))

	summary, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.Recoveries)
	assert.Equal(t, []models.RecoveryStrategy{
		models.StrategyRetryWithDelay,
		models.StrategySimplifyApproach,
		models.StrategyGracefulAbort,
	}, h.logger.strategies)

	goal, _ := h.store.Get(id)
	assert.Equal(t, models.GoalFailedExecution, goal.Status)
	assert.Contains(t, goal.FailureReason, "graceful_abort after 2 recovery attempts")
	assert.InDelta(t, 0.4, h.analyzer.Estimate(models.FailureNetworkError, models.StrategyRetryWithDelay), 1e-9)
	assert.InDelta(t, 0.4, h.analyzer.Estimate(models.FailureNetworkError, models.StrategySimplifyApproach), 1e-9)
	assert.InDelta(t, 0.5, h.analyzer.Estimate(models.FailureNetworkError, models.StrategyGracefulAbort), 1e-9,
		"terminal strategies are not recorded")

	require.Len(t, summary.FailedGoals, 1)
	assert.Equal(t, id, summary.FailedGoals[0].ID)
}

func TestUseAlternativeTool(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.analyzer.RecordOutcome(context.Background(), models.FailureExecutionError, models.StrategyUseAlternativeTool, true))

	id := h.addGoal(t, "render", 5)
	h.gen.static("render", models.ActionSpec{
		ID: "draw", Type: "flaky", Critical: true, Alternatives: []string{"flaky", handlers.TypeEcho},
	})

	summary, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, []models.RecoveryStrategy{models.StrategyUseAlternativeTool}, h.logger.strategies)

	goal, _ := h.store.Get(id)
	plan, ok := h.exec.GetPlan(goal.PlanID)
	require.True(t, ok)
	assert.Equal(t, handlers.TypeEcho, plan.Actions[0].Type)
}

func TestAlternativeExcludedWithoutCandidates(t *testing.T) {
	h := newHarness(t, WithMaxAttempts(1))
	require.NoError(t, h.analyzer.RecordOutcome(context.Background(), models.FailureExecutionError, models.StrategyUseAlternativeTool, true))

	h.addGoal(t, "render", 5)
	h.gen.static("render", models.ActionSpec{ID: "draw", Type: "flaky", Critical: true})

	_, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, h.logger.strategies)
	assert.Equal(t, models.StrategyRetryWithDelay, h.logger.strategies[0])
}

func TestSimplifyPassesHint(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.analyzer.RecordOutcome(context.Background(), models.FailureExecutionError, models.StrategySimplifyApproach, true))

	h.addGoal(t, "report", 5)
	h.gen.plans["report"] = func(planCtx map[string]any) ([]models.ActionSpec, error) {
		if simplify, _ := planCtx[planning.ContextSimplify].(bool); simplify {
			return []models.ActionSpec{echo("summary")}, nil
		}
		return []models.ActionSpec{{ID: "full", Type: "flaky", Critical: true}}, nil
	}

	summary, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 2, h.gen.callCount())
	assert.Equal(t, 1, h.gen.calls[1]["attempt"])
}

func TestTerminalStrategiesAnnotateGoal(t *testing.T) {
	tests := []struct {
		strategy models.RecoveryStrategy
		key      string
	}{
		{models.StrategyEscalate, MetaEscalated},
		{models.StrategyManualFallback, MetaManualFallback},
	}
	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			h := newHarness(t)
			for i := 0; i < 3; i++ {
				require.NoError(t, h.analyzer.RecordOutcome(context.Background(), models.FailureExecutionError, tt.strategy, true))
			}
			id := h.addGoal(t, "risky", 5)
			h.gen.static("risky", models.ActionSpec{ID: "x", Type: "flaky", Critical: true})

			summary, err := h.orch.Run(context.Background())
			require.NoError(t, err)
			assert.Zero(t, summary.Recoveries)

			goal, _ := h.store.Get(id)
			assert.Equal(t, models.GoalFailedExecution, goal.Status)
			assert.Equal(t, true, goal.Metadata[tt.key])
			assert.Contains(t, goal.FailureReason, string(tt.strategy))
		})
	}
}

func TestGeneratorErrorFailsPlanning(t *testing.T) {
	h := newHarness(t, WithMaxAttempts(1))
	id := h.addGoal(t, "unknown", 5)

	summary, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, h.gen.callCount(), "one recovery attempt, then abort")

	goal, _ := h.store.Get(id)
	assert.Equal(t, models.GoalFailedPlanning, goal.Status)
	assert.Contains(t, goal.FailureReason, "plan generation failed")
	assert.Equal(t, string(models.FailurePlanningError), goal.Metadata[MetaLastFailure])
}

func TestInvalidPlanFailsPlanning(t *testing.T) {
	h := newHarness(t, WithAnalyzer(nil))
	id := h.addGoal(t, "bad", 5)
	h.gen.static("bad", models.ActionSpec{ID: "x", Type: "teleport"})

	_, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	goal, _ := h.store.Get(id)
	assert.Equal(t, models.GoalFailedPlanning, goal.Status)
	assert.Contains(t, goal.FailureReason, "plan failed validation")
	plan, ok := h.exec.GetPlan(goal.PlanID)
	require.True(t, ok)
	assert.Equal(t, models.PlanFailedValidation, plan.Status)
}

func TestWithoutAnalyzerFailsImmediately(t *testing.T) {
	h := newHarness(t, WithAnalyzer(nil))
	id := h.addGoal(t, "once", 5)
	dependent := h.addGoal(t, "after", 5, id)
	h.gen.static("once", failing("x", nil))

	summary, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Recoveries)
	assert.Empty(t, h.logger.strategies)
	assert.Equal(t, []string{dependent}, summary.StalledGoalIDs)

	goal, _ := h.store.Get(id)
	assert.Equal(t, models.GoalFailedExecution, goal.Status)
	assert.Contains(t, goal.FailureReason, "forced failure")
}

func TestCancellationCancelsGoal(t *testing.T) {
	h := newHarness(t)
	id := h.addGoal(t, "slow", 5)
	h.gen.static("slow", models.ActionSpec{ID: "wait", Type: handlers.TypeSleep, Critical: true,
		Params: models.LiteralParams(map[string]any{"duration": "10s"})})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	summary, err := h.orch.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, summary.Cancelled)

	goal, _ := h.store.Get(id)
	assert.Equal(t, models.GoalCancelled, goal.Status)
}

func TestSnapshotsSavedAndResumed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	backend, err := snapshot.NewFileBackend(path)
	require.NoError(t, err)

	// a run that stopped with a paused plan
	first := newHarness(t)
	id := first.addGoal(t, "resume me", 5)
	goal, ok := first.store.NextActionableGoal()
	require.True(t, ok)
	plan, err := first.exec.CreatePlan(goal.ID, []models.ActionSpec{echo("a"), echo("b")})
	require.NoError(t, err)
	require.NoError(t, first.store.AttachPlan(goal.ID, plan.ID))
	require.NoError(t, first.exec.PausePlan(plan.ID))
	require.NoError(t, backend.Save(context.Background(), snapshot.Capture(first.store, first.exec, time.Now())))

	snap, err := backend.Load(context.Background())
	require.NoError(t, err)
	resumed := newHarness(t, WithSnapshots(backend))
	resumed.exec = executor.NewPlanExecutor(handlers.NewDefaultRegistry())
	resumed.store, err = snap.Restore(resumed.exec)
	require.NoError(t, err)
	resumed.orch = New(resumed.store, resumed.exec, resumed.gen, WithSnapshots(backend), WithMode(models.ModeSequential))

	summary, err := resumed.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Zero(t, resumed.gen.callCount(), "paused plan is resumed, not regenerated")

	final, _ := resumed.store.Get(id)
	assert.Equal(t, plan.ID, final.PlanID)

	saved, err := backend.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, saved.Goals, 1)
	assert.Equal(t, models.GoalCompletedSuccess, saved.Goals[0].Status)
	require.Len(t, saved.Plans, 1)
	assert.Equal(t, models.PlanCompletedSuccess, saved.Plans[0].Status)
}

func TestNewPanicsWithoutDependencies(t *testing.T) {
	assert.Panics(t, func() { New(nil, nil, nil) })
}
