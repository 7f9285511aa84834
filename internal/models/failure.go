package models

import "time"

// FailureType is the fixed taxonomy action-level failures are classified into.
type FailureType string

// Failure taxonomy
const (
	FailureToolUnavailable  FailureType = "tool_unavailable"
	FailureExecutionError   FailureType = "execution_error"
	FailureRateLimited      FailureType = "rate_limited"
	FailurePermissionDenied FailureType = "permission_denied"
	FailureNetworkError     FailureType = "network_error"
	FailurePlanningError    FailureType = "planning_error"
	FailureParsingError     FailureType = "parsing_error"
	FailureUnknownTransient FailureType = "unknown_transient"
	FailureUnknownPermanent FailureType = "unknown_permanent"
)

// FailureTypes lists the taxonomy in a stable order.
var FailureTypes = []FailureType{
	FailureToolUnavailable,
	FailureExecutionError,
	FailureRateLimited,
	FailurePermissionDenied,
	FailureNetworkError,
	FailurePlanningError,
	FailureParsingError,
	FailureUnknownTransient,
	FailureUnknownPermanent,
}

// Valid reports whether f belongs to the taxonomy.
func (f FailureType) Valid() bool {
	for _, known := range FailureTypes {
		if f == known {
			return true
		}
	}
	return false
}

// RecoveryStrategy is a named policy for responding to a classified failure.
type RecoveryStrategy string

// Recovery strategies
const (
	StrategyRetryWithDelay     RecoveryStrategy = "retry_with_delay"
	StrategyUseAlternativeTool RecoveryStrategy = "use_alternative_tool"
	StrategySimplifyApproach   RecoveryStrategy = "simplify_approach"
	StrategyEscalate           RecoveryStrategy = "escalate"
	StrategyManualFallback     RecoveryStrategy = "manual_fallback"
	StrategyGracefulAbort      RecoveryStrategy = "graceful_abort"
)

// RecoveryStrategies lists every strategy in tie-break preference order,
// cheapest first.
var RecoveryStrategies = []RecoveryStrategy{
	StrategyRetryWithDelay,
	StrategyUseAlternativeTool,
	StrategySimplifyApproach,
	StrategyEscalate,
	StrategyManualFallback,
	StrategyGracefulAbort,
}

// Valid reports whether s is a known strategy.
func (s RecoveryStrategy) Valid() bool {
	for _, known := range RecoveryStrategies {
		if s == known {
			return true
		}
	}
	return false
}

// Rank returns the tie-break position of s; lower is preferred.
func (s RecoveryStrategy) Rank() int {
	for i, known := range RecoveryStrategies {
		if s == known {
			return i
		}
	}
	return len(RecoveryStrategies)
}

// IsTerminal returns true for strategies that end the goal instead of trying again.
func (s RecoveryStrategy) IsTerminal() bool {
	switch s {
	case StrategyEscalate, StrategyManualFallback, StrategyGracefulAbort:
		return true
	}
	return false
}

// StrategyEstimate is the learned success rate of one recovery strategy
// applied to one failure type.
type StrategyEstimate struct {
	FailureType FailureType      `json:"failure_type"`
	Strategy    RecoveryStrategy `json:"strategy"`
	Value       float64          `json:"estimate"`
	Samples     int              `json:"samples"`
	Successes   int              `json:"successes"`
	UpdatedAt   time.Time        `json:"updated_at"`
}
