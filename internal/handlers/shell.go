package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/harrison/pursuit/internal/models"
)

// ShellResult is the result of a shell action. References address its
// fields by their JSON names, e.g. {ref: build, field: stdout}.
type ShellResult struct {
	Command         string  `json:"command"`
	ExitCode        int     `json:"exit_code"`
	Stdout          string  `json:"stdout"`
	Stderr          string  `json:"stderr"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// ShellHandler runs the "command" param through a shell. Optional params:
// "dir" (working directory), "stdin" and "env" (a mapping of extra variables).
// A non-zero exit status fails the action.
type ShellHandler struct {
	Shell string
	Dir   string
}

func (h *ShellHandler) Execute(ctx context.Context, action models.Action) (any, error) {
	command, err := stringParam(action, "command")
	if err != nil {
		return nil, err
	}
	shell := h.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	cmd := exec.CommandContext(ctx, shell, "-c", command)
	if dir := optionalString(action, "dir", ""); dir != "" {
		cmd.Dir = resolvePath(h.Dir, dir)
	} else if h.Dir != "" {
		cmd.Dir = h.Dir
	}
	if stdin := optionalString(action, "stdin", ""); stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	if env, ok := action.Value("env"); ok {
		vars, err := envList(env)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", action.Type, err)
		}
		cmd.Env = append(os.Environ(), vars...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	result := &ShellResult{
		Command:         command,
		Stdout:          strings.TrimSpace(stdout.String()),
		Stderr:          strings.TrimSpace(stderr.String()),
		DurationSeconds: time.Since(start).Seconds(),
	}
	if runErr == nil {
		return result, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	var exitErr *exec.ExitError
	if !errors.As(runErr, &exitErr) {
		return nil, fmt.Errorf("failed to start command: %w", runErr)
	}
	result.ExitCode = exitErr.ExitCode()
	if result.ExitCode == 127 {
		return nil, fmt.Errorf("command not found: %s", firstLine(result.Stderr))
	}
	if result.Stderr != "" {
		return nil, fmt.Errorf("%w: %s", runErr, firstLine(result.Stderr))
	}
	return nil, runErr
}

func envList(v any) ([]string, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("param \"env\" must be a mapping, got %T", v)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vars := make([]string, 0, len(keys))
	for _, k := range keys {
		vars = append(vars, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return vars, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
