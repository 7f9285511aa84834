package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harrison/pursuit/internal/models"
)

// Echo returns its params as a map, so later actions can reference any of
// them by field.
func Echo(ctx context.Context, action models.Action) (any, error) {
	out := make(map[string]any, len(action.Params))
	for k := range action.Params {
		v, _ := action.Value(k)
		out[k] = v
	}
	return out, nil
}

// Sleep waits for the "duration" param, or until ctx is done.
func Sleep(ctx context.Context, action models.Action) (any, error) {
	raw, ok := action.Value("duration")
	if !ok {
		return nil, fmt.Errorf("%s: missing required param %q", action.Type, "duration")
	}
	d, err := durationValue(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action.Type, err)
	}
	if d < 0 {
		return nil, fmt.Errorf("%s: duration must be >= 0", action.Type)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return map[string]any{"slept": d.String()}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// FailHandler fails on purpose. With a "times" param it fails only the first
// n calls for the same action id and succeeds afterwards, which makes it
// useful for exercising recovery. "message" sets the error text.
type FailHandler struct {
	mu    sync.Mutex
	calls map[string]int
}

func NewFailHandler() *FailHandler {
	return &FailHandler{calls: make(map[string]int)}
}

func (h *FailHandler) Execute(ctx context.Context, action models.Action) (any, error) {
	message := optionalString(action, "message", "forced failure")
	times := 0
	if v, ok := action.Value("times"); ok {
		n, ok := intValue(v)
		if !ok || n < 0 {
			return nil, fmt.Errorf("%s: param \"times\" must be a non-negative integer", action.Type)
		}
		times = n
	}

	key := optionalString(action, "key", action.ID)
	h.mu.Lock()
	h.calls[key]++
	calls := h.calls[key]
	h.mu.Unlock()

	if times == 0 || calls <= times {
		return nil, errors.New(message)
	}
	return map[string]any{"calls": calls, "failures": times}, nil
}

// Calls returns how often the handler ran for key.
func (h *FailHandler) Calls(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[key]
}
