package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/pursuit/internal/executor"
	"github.com/harrison/pursuit/internal/goals"
	"github.com/harrison/pursuit/internal/models"
)

func newState(t *testing.T) (*goals.Store, *executor.PlanExecutor) {
	t.Helper()

	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	store := goals.NewStore(goals.WithClock(clock))

	build, err := store.AddGoal("build", 5, nil, map[string]any{"team": "infra"}, "goals.yaml")
	require.NoError(t, err)
	_, err = store.AddGoal("deploy", 8, []string{build}, nil, "goals.yaml")
	require.NoError(t, err)
	_, err = store.AddGoal("docs", 5, nil, nil, "goals.yaml")
	require.NoError(t, err)

	registry := executor.NewRegistry()
	registry.MustRegister("noop", executor.HandlerFunc(func(ctx context.Context, a models.Action) (any, error) {
		return nil, nil
	}))
	plans := executor.NewPlanExecutor(registry)
	_, err = plans.CreatePlan(build, []models.ActionSpec{
		{ID: "compile", Type: "noop", Critical: true},
		{ID: "publish", Type: "noop", Params: map[string]models.Param{
			"artifact": models.Ref("compile", "path"),
			"channel":  models.Literal("stable"),
		}},
	})
	require.NoError(t, err)
	return store, plans
}

func TestCaptureRestoreReproducesScheduling(t *testing.T) {
	store, plans := newState(t)
	snap := Capture(store, plans, time.Now())

	data, err := Encode(snap)
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)

	restoredPlans := executor.NewPlanExecutor(executor.NewRegistry())
	restored, err := decoded.Restore(restoredPlans)
	require.NoError(t, err)

	for {
		want, wantOK := store.NextActionableGoal()
		got, gotOK := restored.NextActionableGoal()
		require.Equal(t, wantOK, gotOK)
		if !wantOK {
			break
		}
		assert.Equal(t, want.ID, got.ID)
		require.NoError(t, store.UpdateGoalStatus(want.ID, models.GoalCompletedSuccess, ""))
		require.NoError(t, restored.UpdateGoalStatus(got.ID, models.GoalCompletedSuccess, ""))
	}

	restoredList := restoredPlans.Plans()
	require.Len(t, restoredList, 1)
	publish := restoredList[0].Action("publish")
	require.NotNil(t, publish)
	require.True(t, publish.Params["artifact"].IsReference())
	assert.Equal(t, "compile", publish.Params["artifact"].Ref.ActionID)
	assert.Equal(t, "stable", publish.Params["channel"].Value)
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing version", `{"goals": []}`},
		{"future version", `{"version": 99, "goals": []}`},
		{"malformed", `{"version":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestFileBackend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "snapshot.json")
	backend, err := NewFileBackend(path)
	require.NoError(t, err)
	defer backend.Close()

	_, err = backend.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	store, plans := newState(t)
	require.NoError(t, backend.Save(ctx, Capture(store, plans, time.Now())))

	loaded, err := backend.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, loaded.Version)
	assert.Len(t, loaded.Goals, 3)
	assert.Len(t, loaded.Plans, 1)

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".snapshot-")
	}
}

func TestFileBackendRequiresPath(t *testing.T) {
	_, err := NewFileBackend("")
	assert.Error(t, err)
}

func TestFileBackendConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	backend, err := NewFileBackend(path)
	require.NoError(t, err)

	store, plans := newState(t)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// each writer gets its own lock handle, as separate processes would
			b, err := NewFileBackend(path)
			if !assert.NoError(t, err) {
				return
			}
			assert.NoError(t, b.Save(ctx, Capture(store, plans, time.Now())))
		}()
	}
	wg.Wait()

	loaded, err := backend.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded.Goals, 3)
}

func TestFileLockExcludesSecondHolder(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "snapshot.json.lock")
	first := newFileLock(lockPath)
	second := newFileLock(lockPath)

	require.NoError(t, first.Lock())

	acquired := make(chan error, 1)
	go func() {
		acquired <- second.Lock()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired the lock while the first held it")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, first.Unlock())
	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("second holder never acquired the released lock")
	}
	require.NoError(t, second.Unlock())
}

func TestFileBackendCreatesMissingDirectories(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), ".pursuit", "state", "snapshot.json")
	backend, err := NewFileBackend(path)
	require.NoError(t, err)

	store, plans := newState(t)
	require.NoError(t, backend.Save(ctx, Capture(store, plans, time.Now())))

	_, err = os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(path + ".lock")
	assert.NoError(t, err)
}

func TestRedisBackend(t *testing.T) {
	ctx := context.Background()
	server := miniredis.RunT(t)

	backend, err := NewRedisBackend(ctx, RedisConfig{Address: server.Addr()})
	require.NoError(t, err)
	defer backend.Close()
	assert.Equal(t, DefaultRedisKey, backend.Key())

	_, err = backend.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	store, plans := newState(t)
	require.NoError(t, backend.Save(ctx, Capture(store, plans, time.Now())))
	assert.True(t, server.Exists(DefaultRedisKey))

	loaded, err := backend.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded.Goals, 3)

	restored, err := loaded.Restore(nil)
	require.NoError(t, err)
	next, ok := restored.NextActionableGoal()
	require.True(t, ok)
	assert.Equal(t, "build", next.Description)
}

func TestRedisBackendTTL(t *testing.T) {
	ctx := context.Background()
	server := miniredis.RunT(t)

	backend, err := NewRedisBackend(ctx, RedisConfig{Address: server.Addr(), Key: "run:42", TTL: time.Minute})
	require.NoError(t, err)
	defer backend.Close()

	require.NoError(t, backend.Save(ctx, &Snapshot{SavedAt: time.Now()}))
	assert.Equal(t, time.Minute, server.TTL("run:42"))

	server.FastForward(2 * time.Minute)
	_, err = backend.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewRedisBackendErrors(t *testing.T) {
	_, err := NewRedisBackend(context.Background(), RedisConfig{})
	assert.Error(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = NewRedisBackend(ctx, RedisConfig{Address: "127.0.0.1:1"})
	assert.Error(t, err)
}
