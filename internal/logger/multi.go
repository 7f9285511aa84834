package logger

import (
	"time"

	"github.com/harrison/pursuit/internal/models"
)

// EventLogger is the full set of events a pursuit logger receives: the
// orchestrator's goal and plan events, the executor's action events, and
// free-form levelled messages.
type EventLogger interface {
	LogGoalStart(goal models.Goal)
	LogPlanStart(plan *models.Plan, mode models.ExecutionMode)
	LogPlanComplete(plan *models.Plan)
	LogRecovery(goal models.Goal, failure models.FailureType, strategy models.RecoveryStrategy, attempt int)
	LogGoalComplete(goal models.Goal, duration time.Duration)
	LogSummary(summary models.ExecutionSummary)
	LogActionStart(planID string, action models.Action)
	LogActionResult(planID string, action models.Action)
	LogInfo(message string)
	LogWarn(message string)
	LogError(message string)
}

// Multi fans every event out to each logger in order.
type Multi []EventLogger

// NewMulti drops nil loggers.
func NewMulti(loggers ...EventLogger) Multi {
	m := make(Multi, 0, len(loggers))
	for _, l := range loggers {
		if l != nil {
			m = append(m, l)
		}
	}
	return m
}

func (m Multi) LogGoalStart(goal models.Goal) {
	for _, l := range m {
		l.LogGoalStart(goal)
	}
}

func (m Multi) LogPlanStart(plan *models.Plan, mode models.ExecutionMode) {
	for _, l := range m {
		l.LogPlanStart(plan, mode)
	}
}

func (m Multi) LogPlanComplete(plan *models.Plan) {
	for _, l := range m {
		l.LogPlanComplete(plan)
	}
}

func (m Multi) LogRecovery(goal models.Goal, failure models.FailureType, strategy models.RecoveryStrategy, attempt int) {
	for _, l := range m {
		l.LogRecovery(goal, failure, strategy, attempt)
	}
}

func (m Multi) LogGoalComplete(goal models.Goal, duration time.Duration) {
	for _, l := range m {
		l.LogGoalComplete(goal, duration)
	}
}

func (m Multi) LogSummary(summary models.ExecutionSummary) {
	for _, l := range m {
		l.LogSummary(summary)
	}
}

func (m Multi) LogActionStart(planID string, action models.Action) {
	for _, l := range m {
		l.LogActionStart(planID, action)
	}
}

func (m Multi) LogActionResult(planID string, action models.Action) {
	for _, l := range m {
		l.LogActionResult(planID, action)
	}
}

func (m Multi) LogInfo(message string) {
	for _, l := range m {
		l.LogInfo(message)
	}
}

func (m Multi) LogWarn(message string) {
	for _, l := range m {
		l.LogWarn(message)
	}
}

func (m Multi) LogError(message string) {
	for _, l := range m {
		l.LogError(message)
	}
}
