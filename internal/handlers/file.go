package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/harrison/pursuit/internal/models"
)

// FileReadHandler returns the content of the "path" param as a string.
// "max_bytes" caps how much is read.
type FileReadHandler struct {
	BaseDir string
}

func (h *FileReadHandler) Execute(ctx context.Context, action models.Action) (any, error) {
	path, err := stringParam(action, "path")
	if err != nil {
		return nil, err
	}
	path = resolvePath(h.BaseDir, path)

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if v, ok := action.Value("max_bytes"); ok {
		n, ok := intValue(v)
		if !ok || n <= 0 {
			return nil, fmt.Errorf("%s: param \"max_bytes\" must be a positive integer", action.Type)
		}
		r = io.LimitReader(f, int64(n))
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return map[string]any{
		"path":    path,
		"content": string(data),
		"size":    len(data),
	}, nil
}

// FileWriteHandler writes the "content" param to "path", creating parent
// directories. Non-string content is written as indented JSON. With
// "append: true" the content is appended instead of replacing the file.
type FileWriteHandler struct {
	BaseDir string
}

func (h *FileWriteHandler) Execute(ctx context.Context, action models.Action) (any, error) {
	path, err := stringParam(action, "path")
	if err != nil {
		return nil, err
	}
	path = resolvePath(h.BaseDir, path)

	raw, ok := action.Value("content")
	if !ok {
		return nil, fmt.Errorf("%s: missing required param %q", action.Type, "content")
	}
	var data []byte
	switch c := raw.(type) {
	case string:
		data = []byte(c)
	case nil:
	default:
		data, err = json.MarshalIndent(c, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("%s: cannot encode content: %w", action.Type, err)
		}
		data = append(data, '\n')
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if optionalBool(action, "append") {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, err
	}
	n, err := f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return map[string]any{"path": path, "bytes": n}, nil
}
