package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/harrison/pursuit/internal/models"
)

// ActionExecutor runs one concrete action. It receives the action with every
// Reference param already resolved to a literal and must honour ctx
// cancellation on a best-effort basis. A nil error means success.
type ActionExecutor interface {
	Execute(ctx context.Context, action models.Action) (any, error)
}

// HandlerFunc adapts an ordinary function to the ActionExecutor interface.
type HandlerFunc func(ctx context.Context, action models.Action) (any, error)

// Execute calls f(ctx, action).
func (f HandlerFunc) Execute(ctx context.Context, action models.Action) (any, error) {
	return f(ctx, action)
}

// Registry maps action type discriminators to handlers. It is populated once
// at startup and then only read.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]ActionExecutor
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]ActionExecutor)}
}

// Register binds actionType to handler. Registering a type twice is an error.
func (r *Registry) Register(actionType string, handler ActionExecutor) error {
	if actionType == "" {
		return fmt.Errorf("action type is required")
	}
	if handler == nil {
		return fmt.Errorf("action type %q: handler is nil", actionType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[actionType]; exists {
		return fmt.Errorf("action type %q already registered", actionType)
	}
	r.handlers[actionType] = handler
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(actionType string, handler ActionExecutor) {
	if err := r.Register(actionType, handler); err != nil {
		panic(err)
	}
}

// Supports reports whether a handler is registered for actionType.
func (r *Registry) Supports(actionType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[actionType]
	return ok
}

// Types returns the registered action types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Execute dispatches action to the handler registered for its type.
func (r *Registry) Execute(ctx context.Context, action models.Action) (any, error) {
	r.mu.RLock()
	handler, ok := r.handlers[action.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, &ToolUnavailableError{ActionType: action.Type}
	}
	return handler.Execute(ctx, action)
}
