package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harrison/pursuit/internal/models"
)

var (
	// ErrPlanNotFound is returned when a plan id is unknown to the executor.
	ErrPlanNotFound = errors.New("plan not found")
	// ErrPlanRunning is returned when a plan is already being executed.
	ErrPlanRunning = errors.New("plan is already running")
	// ErrPlanFinished is returned when a terminal plan is executed or cancelled again.
	ErrPlanFinished = errors.New("plan already finished")
	// ErrUnknownMode is returned for execution modes other than sequential and parallel.
	ErrUnknownMode = errors.New("unknown execution mode")
)

// ActionError represents a handler failure for a single action.
// It includes context about which action failed and when.
type ActionError struct {
	ActionID   string    // ID of the action that failed
	ActionType string    // Handler type the action was dispatched to
	Message    string    // Human-readable error message
	Err        error     // Underlying error (optional)
	Timestamp  time.Time // When the error occurred
}

// NewActionError creates a new ActionError with the current timestamp.
func NewActionError(id, actionType, msg string, err error) *ActionError {
	return &ActionError{
		ActionID:   id,
		ActionType: actionType,
		Message:    msg,
		Err:        err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface for ActionError.
func (e *ActionError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("action %s (%s): %s", e.ActionID, e.ActionType, e.Message))
	if e.Err != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Err))
	}
	return sb.String()
}

// Unwrap returns the underlying error for error wrapping support.
func (e *ActionError) Unwrap() error {
	return e.Err
}

// TimeoutError represents an action that exceeded its timeout.
type TimeoutError struct {
	ActionID        string        // ID of the action that timed out
	TimeoutDuration time.Duration // Duration after which timeout occurred
	Timestamp       time.Time     // When the timeout occurred
}

// NewTimeoutError creates a new TimeoutError with the current timestamp.
func NewTimeoutError(id string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		ActionID:        id,
		TimeoutDuration: duration,
		Timestamp:       time.Now(),
	}
}

// Error implements the error interface for TimeoutError.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("action %s: timeout after %v", e.ActionID, e.TimeoutDuration)
}

// Unwrap returns context.DeadlineExceeded to support error wrapping.
func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// ToolUnavailableError is returned when no handler is registered for an action type.
type ToolUnavailableError struct {
	ActionType string
}

func (e *ToolUnavailableError) Error() string {
	return fmt.Sprintf("no handler registered for action type %q", e.ActionType)
}

// ResolutionError is returned when a Reference param cannot be resolved.
type ResolutionError struct {
	ActionID  string           // Action whose param failed to resolve
	Param     string           // Param name
	Reference models.Reference // The reference that failed
	Reason    string
	Err       error
}

func (e *ResolutionError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("action %s: param %q: cannot resolve reference to %s", e.ActionID, e.Param, e.Reference.ActionID))
	if e.Reference.Field != "" {
		sb.WriteString(fmt.Sprintf(" field %q", e.Reference.Field))
	}
	sb.WriteString(": ")
	sb.WriteString(e.Reason)
	if e.Err != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Err))
	}
	return sb.String()
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// ValidationError aggregates every problem found in a batch of action specs.
type ValidationError struct {
	PlanID   string
	Problems []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	var sb strings.Builder
	if e.PlanID != "" {
		sb.WriteString(fmt.Sprintf("plan %s: ", e.PlanID))
	}
	sb.WriteString(fmt.Sprintf("validation failed: %d problem(s)", len(e.Problems)))
	for _, p := range e.Problems {
		sb.WriteString(fmt.Sprintf("\n  - %s", p))
	}
	return sb.String()
}

func (e *ValidationError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// IsActionError checks if the error is or wraps an ActionError.
func IsActionError(err error) bool {
	if err == nil {
		return false
	}
	var ae *ActionError
	return errors.As(err, &ae)
}

// IsTimeoutError checks if the error is or wraps a TimeoutError or context.DeadlineExceeded.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	// Check for TimeoutError
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}

	// Check for context.DeadlineExceeded
	return errors.Is(err, context.DeadlineExceeded)
}

// IsToolUnavailableError checks if the error is or wraps a ToolUnavailableError.
func IsToolUnavailableError(err error) bool {
	if err == nil {
		return false
	}
	var tu *ToolUnavailableError
	return errors.As(err, &tu)
}

// IsResolutionError checks if the error is or wraps a ResolutionError.
func IsResolutionError(err error) bool {
	if err == nil {
		return false
	}
	var re *ResolutionError
	return errors.As(err, &re)
}

// IsValidationError checks if the error is or wraps a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var ve *ValidationError
	return errors.As(err, &ve)
}
