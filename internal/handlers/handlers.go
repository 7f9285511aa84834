// Package handlers holds the built-in action handlers: echo, sleep, fail,
// shell, file.read and file.write.
package handlers

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/harrison/pursuit/internal/executor"
	"github.com/harrison/pursuit/internal/models"
)

// Built-in action types
const (
	TypeEcho      = "echo"
	TypeSleep     = "sleep"
	TypeFail      = "fail"
	TypeShell     = "shell"
	TypeFileRead  = "file.read"
	TypeFileWrite = "file.write"
)

type settings struct {
	baseDir string
	shell   string
}

// Option configures the built-in handlers.
type Option func(*settings)

// WithBaseDir resolves relative file paths and shell working directories
// against dir instead of the process working directory.
func WithBaseDir(dir string) Option {
	return func(s *settings) {
		s.baseDir = dir
	}
}

// WithShell overrides the interpreter used by the shell handler (default /bin/sh).
func WithShell(path string) Option {
	return func(s *settings) {
		if path != "" {
			s.shell = path
		}
	}
}

// NewDefaultRegistry returns a registry with every built-in handler.
func NewDefaultRegistry(opts ...Option) *executor.Registry {
	s := &settings{shell: "/bin/sh"}
	for _, opt := range opts {
		opt(s)
	}

	reg := executor.NewRegistry()
	reg.MustRegister(TypeEcho, executor.HandlerFunc(Echo))
	reg.MustRegister(TypeSleep, executor.HandlerFunc(Sleep))
	reg.MustRegister(TypeFail, NewFailHandler())
	reg.MustRegister(TypeShell, &ShellHandler{Shell: s.shell, Dir: s.baseDir})
	reg.MustRegister(TypeFileRead, &FileReadHandler{BaseDir: s.baseDir})
	reg.MustRegister(TypeFileWrite, &FileWriteHandler{BaseDir: s.baseDir})
	return reg
}

func stringParam(action models.Action, key string) (string, error) {
	v, ok := action.Value(key)
	if !ok || v == nil {
		return "", fmt.Errorf("%s: missing required param %q", action.Type, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s: param %q must be a string, got %T", action.Type, key, v)
	}
	return s, nil
}

func optionalString(action models.Action, key, fallback string) string {
	v, ok := action.Value(key)
	if !ok || v == nil {
		return fallback
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func optionalBool(action models.Action, key string) bool {
	v, _ := action.Value(key)
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, _ := strconv.ParseBool(b)
		return parsed
	}
	return false
}

// intValue accepts the numeric forms YAML and JSON decoding produce.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	}
	return 0, false
}

// durationValue accepts "1.5s" style strings or a number of seconds.
func durationValue(v any) (time.Duration, error) {
	switch d := v.(type) {
	case string:
		return time.ParseDuration(d)
	case int:
		return time.Duration(d) * time.Second, nil
	case int64:
		return time.Duration(d) * time.Second, nil
	case float64:
		return time.Duration(d * float64(time.Second)), nil
	}
	return 0, fmt.Errorf("unsupported duration %v (%T)", v, v)
}

func resolvePath(baseDir, path string) string {
	if baseDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
