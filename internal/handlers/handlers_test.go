package handlers

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/pursuit/internal/executor"
	"github.com/harrison/pursuit/internal/models"
	"github.com/harrison/pursuit/internal/recovery"
)

func action(actionType string, params map[string]any) models.Action {
	return models.Action{ID: "a1", Type: actionType, Params: models.LiteralParams(params)}
}

func TestNewDefaultRegistry(t *testing.T) {
	reg := NewDefaultRegistry()
	assert.Equal(t, []string{"echo", "fail", "file.read", "file.write", "shell", "sleep"}, reg.Types())
}

func TestEcho(t *testing.T) {
	out, err := Echo(context.Background(), action(TypeEcho, map[string]any{"message": "hi", "n": 2}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"message": "hi", "n": 2}, out)
}

func TestSleep(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		wantErr bool
	}{
		{"string duration", "10ms", false},
		{"integer seconds", 0, false},
		{"fractional seconds", 0.01, false},
		{"bad string", "soon", true},
		{"negative", "-1s", true},
		{"wrong type", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Sleep(context.Background(), action(TypeSleep, map[string]any{"duration": tt.value}))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	_, err := Sleep(context.Background(), action(TypeSleep, nil))
	assert.Error(t, err, "duration is required")
}

func TestSleepHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Sleep(ctx, action(TypeSleep, map[string]any{"duration": "10s"}))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFailHandler(t *testing.T) {
	h := NewFailHandler()
	a := action(TypeFail, map[string]any{"times": 2, "message": "connection refused"})

	for i := 0; i < 2; i++ {
		_, err := h.Execute(context.Background(), a)
		require.Error(t, err)
		assert.Equal(t, models.FailureNetworkError, recovery.NewClassifier().Classify(err))
	}
	out, err := h.Execute(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, 3, out.(map[string]any)["calls"])
	assert.Equal(t, 3, h.Calls("a1"))

	always := action(TypeFail, nil)
	always.ID = "a2"
	for i := 0; i < 3; i++ {
		_, err := h.Execute(context.Background(), always)
		assert.EqualError(t, err, "forced failure")
	}

	_, err = h.Execute(context.Background(), action(TypeFail, map[string]any{"times": -1}))
	assert.Error(t, err)
}

func TestShell(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}
	dir := t.TempDir()
	h := &ShellHandler{Dir: dir}

	out, err := h.Execute(context.Background(), action(TypeShell, map[string]any{
		"command": "echo $GREETING; pwd; cat",
		"env":     map[string]any{"GREETING": "hello"},
		"stdin":   "from stdin",
	}))
	require.NoError(t, err)
	res := out.(*ShellResult)
	assert.Contains(t, res.Stdout, "hello")
	assert.Contains(t, res.Stdout, "from stdin")
	assert.Contains(t, res.Stdout, filepath.Base(dir), "runs in the base dir")
	assert.Equal(t, 0, res.ExitCode)
}

func TestShellFailures(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}
	h := &ShellHandler{}
	classifier := recovery.NewClassifier()

	_, err := h.Execute(context.Background(), action(TypeShell, map[string]any{"command": "echo boom >&2; exit 3"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 3: boom")
	assert.Equal(t, models.FailureExecutionError, classifier.Classify(err))

	_, err = h.Execute(context.Background(), action(TypeShell, map[string]any{"command": "definitely-not-a-real-binary-xyz"}))
	require.Error(t, err)
	assert.Equal(t, models.FailureToolUnavailable, classifier.Classify(err))

	_, err = h.Execute(context.Background(), action(TypeShell, nil))
	assert.Error(t, err, "command is required")

	_, err = h.Execute(context.Background(), action(TypeShell, map[string]any{"command": "true", "env": "X=1"}))
	assert.Error(t, err, "env must be a mapping")
}

func TestShellResultReferencedByField(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}
	exec := executor.NewPlanExecutor(NewDefaultRegistry())
	plan, err := exec.CreatePlan("goal", []models.ActionSpec{
		{ID: "build", Type: TypeShell, Params: models.LiteralParams(map[string]any{"command": "echo v1.2.3"})},
		{ID: "tag", Type: TypeEcho, Params: map[string]models.Param{"version": models.Ref("build", "stdout")}},
	})
	require.NoError(t, err)

	plan, err = exec.ExecutePlan(context.Background(), plan.ID, models.ModeSequential)
	require.NoError(t, err)
	require.Equal(t, models.PlanCompletedSuccess, plan.Status, plan.FailureReason)
	assert.Equal(t, "v1.2.3", plan.Results["tag"].(map[string]any)["version"])
}

func TestFileHandlers(t *testing.T) {
	dir := t.TempDir()
	write := &FileWriteHandler{BaseDir: dir}
	read := &FileReadHandler{BaseDir: dir}

	out, err := write.Execute(context.Background(), action(TypeFileWrite, map[string]any{"path": "nested/out.txt", "content": "one\n"}))
	require.NoError(t, err)
	assert.Equal(t, 4, out.(map[string]any)["bytes"])

	_, err = write.Execute(context.Background(), action(TypeFileWrite, map[string]any{"path": "nested/out.txt", "content": "two\n", "append": true}))
	require.NoError(t, err)

	out, err = read.Execute(context.Background(), action(TypeFileRead, map[string]any{"path": "nested/out.txt"}))
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", out.(map[string]any)["content"])

	out, err = read.Execute(context.Background(), action(TypeFileRead, map[string]any{"path": "nested/out.txt", "max_bytes": 3}))
	require.NoError(t, err)
	assert.Equal(t, "one", out.(map[string]any)["content"])

	_, err = write.Execute(context.Background(), action(TypeFileWrite, map[string]any{"path": "data.json", "content": map[string]any{"k": 1}}))
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "data.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"k": 1}`, string(data))
}

func TestFileHandlerErrors(t *testing.T) {
	dir := t.TempDir()
	read := &FileReadHandler{BaseDir: dir}
	write := &FileWriteHandler{BaseDir: dir}

	_, err := read.Execute(context.Background(), action(TypeFileRead, map[string]any{"path": "missing.txt"}))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = read.Execute(context.Background(), action(TypeFileRead, map[string]any{"path": 7}))
	assert.Error(t, err)

	_, err = write.Execute(context.Background(), action(TypeFileWrite, map[string]any{"path": "x.txt"}))
	assert.Error(t, err, "content is required")
}
