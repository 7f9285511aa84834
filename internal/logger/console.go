// Package logger provides logging implementations for pursuit runs.
//
// Loggers receive goal, plan and action events from the orchestrator and the
// plan executor. Implementations are thread-safe and support various output
// destinations (console, file, several at once).
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/harrison/pursuit/internal/models"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// ConsoleLogger logs run progress to a writer with timestamps and thread safety.
// All output is prefixed with [HH:MM:SS] timestamps for tracking execution flow.
// Color output is automatically enabled for terminal output (os.Stdout/os.Stderr).
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided io.Writer.
// If writer is nil, messages are silently discarded.
// Valid levels: trace, debug, info, warn, error (case-insensitive).
// If logLevel is empty or invalid, defaults to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
	}
}

// isTerminal checks if the writer is a terminal that supports colors.
func isTerminal(w io.Writer) bool {
	if w == nil {
		return false
	}
	if w == os.Stdout || w == os.Stderr {
		// false when NO_COLOR is set or stdout is not a TTY
		return !color.NoColor
	}
	return false
}

// normalizeLogLevel converts a log level string to lowercase and validates it.
// Returns "info" as default for empty or invalid levels.
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))
	switch normalized {
	case "trace", "debug", "info", "warn", "error":
		return normalized
	}
	return "info"
}

// logLevelToInt converts a log level string to its numeric value.
func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

// LogTrace logs a trace-level message (most verbose).
func (cl *ConsoleLogger) LogTrace(message string) {
	cl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
func (cl *ConsoleLogger) LogDebug(message string) {
	cl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
// Format: "[HH:MM:SS] [INFO] <message>"
func (cl *ConsoleLogger) LogInfo(message string) {
	cl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (cl *ConsoleLogger) LogWarn(message string) {
	cl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (cl *ConsoleLogger) LogError(message string) {
	cl.logWithLevel("ERROR", message)
}

func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil || !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	label := level
	if cl.colorOutput {
		label = levelColor(level).Sprint(level)
	}
	cl.write(fmt.Sprintf("[%s] [%s] %s\n", timestamp(), label, message))
}

// write emits one pre-formatted block under the mutex.
func (cl *ConsoleLogger) write(s string) {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	cl.writer.Write([]byte(s))
}

// event writes an unlabelled progress line at the given level.
func (cl *ConsoleLogger) event(level, message string) {
	if cl.writer == nil || !cl.shouldLog(level) {
		return
	}
	cl.write(fmt.Sprintf("[%s] %s\n", timestamp(), message))
}

func (cl *ConsoleLogger) paint(c *color.Color, s string) string {
	if !cl.colorOutput {
		return s
	}
	return c.Sprint(s)
}

// LogGoalStart logs that a goal was taken from the scheduler at INFO level.
// Format: "[HH:MM:SS] Goal <id> (priority <p>): <description>"
func (cl *ConsoleLogger) LogGoalStart(goal models.Goal) {
	cl.event("info", fmt.Sprintf("Goal %s (priority %d): %s",
		shortID(goal.ID), goal.Priority, cl.paint(color.New(color.Bold), goal.Description)))
}

// LogPlanStart logs the start of a plan execution at INFO level.
// Format: "[HH:MM:SS] Starting plan <id>: <count> actions (<mode>)"
func (cl *ConsoleLogger) LogPlanStart(plan *models.Plan, mode models.ExecutionMode) {
	cl.event("info", fmt.Sprintf("Starting plan %s: %d %s (%s)",
		shortID(plan.ID), len(plan.Actions), plural(len(plan.Actions), "action"), mode))
}

// LogPlanComplete logs the final plan status with an action progress bar at INFO level.
func (cl *ConsoleLogger) LogPlanComplete(plan *models.Plan) {
	done := 0
	for _, a := range plan.Actions {
		if a.Status == models.ActionCompletedSuccess {
			done++
		}
	}
	pb := NewProgressBar(len(plan.Actions), 10, cl.colorOutput)
	pb.Update(done)

	message := fmt.Sprintf("Plan %s %s %s", shortID(plan.ID),
		cl.paint(planStatusColor(plan.Status), string(plan.Status)), pb.Render())
	if plan.FailureReason != "" {
		message += ": " + plan.FailureReason
	}
	cl.event("info", message)
}

// LogActionStart logs an action being handed to its handler at DEBUG level.
func (cl *ConsoleLogger) LogActionStart(planID string, action models.Action) {
	cl.event("debug", fmt.Sprintf("  %s %s (%s) started", shortID(planID), action.ID, action.Type))
}

// LogActionResult logs an action's terminal status at DEBUG level; failures
// of critical actions are logged at WARN so they show at the default level.
// Format: "[HH:MM:SS]   <plan> <action> (<type>): <status>"
func (cl *ConsoleLogger) LogActionResult(planID string, action models.Action) {
	level := "debug"
	if action.Status == models.ActionFailed && action.Critical {
		level = "warn"
	}
	message := fmt.Sprintf("  %s %s (%s): %s", shortID(planID), action.ID, action.Type,
		cl.paint(actionStatusColor(action.Status), string(action.Status)))
	if d := action.Duration(); d > 0 {
		message += fmt.Sprintf(" in %s", formatDuration(d))
	}
	if action.Error != "" {
		message += " - " + action.Error
	}
	cl.event(level, message)
}

// LogRecovery logs the strategy chosen for a failed goal at WARN level.
func (cl *ConsoleLogger) LogRecovery(goal models.Goal, failure models.FailureType, strategy models.RecoveryStrategy, attempt int) {
	cl.event("warn", fmt.Sprintf("Goal %s failed (%s); recovery attempt %d: %s",
		shortID(goal.ID), failure, attempt, cl.paint(color.New(color.FgYellow), string(strategy))))
}

// LogGoalComplete logs a goal's terminal status at INFO level.
// Format: "[HH:MM:SS] <icon> Goal <id> <status> (<duration>)"
func (cl *ConsoleLogger) LogGoalComplete(goal models.Goal, duration time.Duration) {
	message := fmt.Sprintf("%s Goal %s %s (%s)", goal.Status.Icon(), shortID(goal.ID),
		cl.paint(goalStatusColor(goal.Status), string(goal.Status)), formatDuration(duration))
	if goal.FailureReason != "" {
		message += ": " + goal.FailureReason
	}
	cl.event("info", message)
}

// LogSummary logs the run summary with completion statistics at INFO level.
func (cl *ConsoleLogger) LogSummary(summary models.ExecutionSummary) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	ts := timestamp()
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", ts, cl.paint(color.New(color.Bold), "=== Run Summary ==="))
	fmt.Fprintf(&b, "[%s] Goals: %d\n", ts, summary.TotalGoals)
	fmt.Fprintf(&b, "[%s] %s\n", ts, cl.paint(color.New(color.FgGreen), fmt.Sprintf("Succeeded: %d", summary.Succeeded)))
	failed := fmt.Sprintf("Failed: %d", summary.Failed)
	if summary.Failed > 0 {
		failed = cl.paint(color.New(color.FgRed), failed)
	}
	fmt.Fprintf(&b, "[%s] %s\n", ts, failed)
	if summary.Cancelled > 0 {
		fmt.Fprintf(&b, "[%s] Cancelled: %d\n", ts, summary.Cancelled)
	}
	fmt.Fprintf(&b, "[%s] Recoveries: %d\n", ts, summary.Recoveries)
	fmt.Fprintf(&b, "[%s] Duration: %s\n", ts, formatDuration(summary.Duration))

	if len(summary.FailedGoals) > 0 {
		fmt.Fprintf(&b, "[%s] %s\n", ts, cl.paint(color.New(color.FgRed), "Failed goals:"))
		for _, g := range summary.FailedGoals {
			fmt.Fprintf(&b, "[%s]   - %s: %s (%s)\n", ts, g.Description, g.Status, g.FailureReason)
		}
	}
	if len(summary.StalledGoalIDs) > 0 {
		fmt.Fprintf(&b, "[%s] Stalled behind failed dependencies: %s\n", ts, strings.Join(summary.StalledGoalIDs, ", "))
	}
	cl.write(b.String())
}

// timestamp returns the current time formatted as "15:04:05" (HH:MM:SS).
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// shortID keeps log lines readable when ids are uuids.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// formatDuration converts a time.Duration to a human-readable string.
// Examples: "350ms", "5s", "1m30s", "2h15m"
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		hours := d / time.Hour
		remainder := d % time.Hour
		if remainder == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		minutes := remainder / time.Minute
		remainder = remainder % time.Minute
		if remainder < time.Second {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		}
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, remainder/time.Second)
	case d >= time.Minute:
		minutes := d / time.Minute
		remainder := d % time.Minute
		if remainder < time.Second {
			return fmt.Sprintf("%dm", minutes)
		}
		return fmt.Sprintf("%dm%ds", minutes, remainder/time.Second)
	case d >= time.Second:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	default:
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
}

// NoOpLogger discards all events.
type NoOpLogger struct{}

// NewNoOpLogger creates a NoOpLogger instance.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) LogGoalStart(goal models.Goal) {}
func (n *NoOpLogger) LogPlanStart(plan *models.Plan, mode models.ExecutionMode) {}
func (n *NoOpLogger) LogPlanComplete(plan *models.Plan) {}
func (n *NoOpLogger) LogActionStart(planID string, action models.Action) {}
func (n *NoOpLogger) LogActionResult(planID string, action models.Action) {}
func (n *NoOpLogger) LogGoalComplete(goal models.Goal, duration time.Duration) {}
func (n *NoOpLogger) LogSummary(summary models.ExecutionSummary) {}
func (n *NoOpLogger) LogRecovery(models.Goal, models.FailureType, models.RecoveryStrategy, int) {}
func (n *NoOpLogger) LogInfo(message string) {}
func (n *NoOpLogger) LogWarn(message string) {}
func (n *NoOpLogger) LogError(message string) {}
