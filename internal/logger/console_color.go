package logger

import (
	"github.com/fatih/color"

	"github.com/harrison/pursuit/internal/models"
)

// colorScheme defines consistent colors for statuses.
// Green: success
// Red: failure
// Yellow: paused, skipped or cancelled
// Cyan: in flight
type colorScheme struct {
	success *color.Color
	fail    *color.Color
	warn    *color.Color
	active  *color.Color
	plain   *color.Color
}

var scheme = &colorScheme{
	success: color.New(color.FgGreen),
	fail:    color.New(color.FgRed),
	warn:    color.New(color.FgYellow),
	active:  color.New(color.FgCyan),
	plain:   color.New(color.Reset),
}

func levelColor(level string) *color.Color {
	switch level {
	case "TRACE":
		return color.New(color.FgHiBlack)
	case "DEBUG":
		return color.New(color.FgCyan)
	case "INFO":
		return color.New(color.FgBlue)
	case "WARN":
		return scheme.warn
	case "ERROR":
		return scheme.fail
	}
	return scheme.plain
}

func goalStatusColor(s models.GoalStatus) *color.Color {
	switch s {
	case models.GoalCompletedSuccess, models.GoalCompletedNoAction:
		return scheme.success
	case models.GoalFailedPlanning, models.GoalFailedExecution:
		return scheme.fail
	case models.GoalPausedDependency, models.GoalCancelled:
		return scheme.warn
	case models.GoalActive:
		return scheme.active
	}
	return scheme.plain
}

func planStatusColor(s models.PlanStatus) *color.Color {
	switch s {
	case models.PlanCompletedSuccess:
		return scheme.success
	case models.PlanFailedAction, models.PlanFailedValidation:
		return scheme.fail
	case models.PlanPaused, models.PlanCancelled:
		return scheme.warn
	case models.PlanInProgress:
		return scheme.active
	}
	return scheme.plain
}

func actionStatusColor(s models.ActionStatus) *color.Color {
	switch s {
	case models.ActionCompletedSuccess:
		return scheme.success
	case models.ActionFailed:
		return scheme.fail
	case models.ActionSkippedDependency, models.ActionCancelled:
		return scheme.warn
	case models.ActionInProgress, models.ActionReadyToExecute:
		return scheme.active
	}
	return scheme.plain
}
