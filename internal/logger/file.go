package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harrison/pursuit/internal/models"
)

// FileLogger logs run events to a log directory (.pursuit/logs by default).
// It creates a timestamped per-run log file, a detailed log per finished
// plan under plans/, and maintains a latest.log symlink pointing to the most
// recent run.
type FileLogger struct {
	logDir   string
	runLog   *os.File
	runFile  string
	plansDir string
	logLevel string
	mu       sync.Mutex
}

// NewFileLogger creates a FileLogger in logDir at the given level.
// It creates the log directory if it doesn't exist, opens a timestamped
// run log file, and creates/updates the latest.log symlink.
func NewFileLogger(logDir string, logLevel string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	plansDir := filepath.Join(logDir, "plans")
	if err := os.MkdirAll(plansDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create plans directory: %w", err)
	}

	// run-YYYYMMDD-HHMMSS.log; a second run within the same second appends
	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", time.Now().Format("20060102-150405")))
	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	symlinkPath := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(filepath.Base(runFile), symlinkPath); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create symlink: %w", err)
	}

	logger := &FileLogger{
		logDir:   logDir,
		runLog:   file,
		runFile:  runFile,
		plansDir: plansDir,
		logLevel: normalizeLogLevel(logLevel),
	}

	logger.writeRunLog("=== Pursuit Run Log ===\n")
	logger.writeRunLog(fmt.Sprintf("Started at: %s\n\n", time.Now().Format(time.RFC3339)))

	return logger, nil
}

// RunFile returns the path of this run's log file.
func (fl *FileLogger) RunFile() string {
	return fl.runFile
}

func (fl *FileLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(fl.logLevel)
}

// LogTrace logs a trace-level message (most verbose).
func (fl *FileLogger) LogTrace(message string) {
	fl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
func (fl *FileLogger) LogDebug(message string) {
	fl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
func (fl *FileLogger) LogInfo(message string) {
	fl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (fl *FileLogger) LogWarn(message string) {
	fl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (fl *FileLogger) LogError(message string) {
	fl.logWithLevel("ERROR", message)
}

func (fl *FileLogger) logWithLevel(level string, message string) {
	if !fl.shouldLog(strings.ToLower(level)) {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [%s] %s\n", timestamp(), level, message))
}

func (fl *FileLogger) event(level, message string) {
	if !fl.shouldLog(level) {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] %s\n", timestamp(), message))
}

// LogGoalStart records a goal taken from the scheduler.
func (fl *FileLogger) LogGoalStart(goal models.Goal) {
	fl.event("info", fmt.Sprintf("Goal %s started (priority %d, attempt %d): %s",
		goal.ID, goal.Priority, goal.Attempts+1, goal.Description))
}

// LogPlanStart records the start of a plan.
func (fl *FileLogger) LogPlanStart(plan *models.Plan, mode models.ExecutionMode) {
	fl.event("info", fmt.Sprintf("Plan %s for goal %s: %d %s, mode %s",
		plan.ID, plan.GoalID, len(plan.Actions), plural(len(plan.Actions), "action"), mode))
}

// LogActionStart records an action handed to its handler.
func (fl *FileLogger) LogActionStart(planID string, action models.Action) {
	fl.event("debug", fmt.Sprintf("Action %s/%s (%s) started, attempt %d", planID, action.ID, action.Type, action.Attempts))
}

// LogActionResult records an action's terminal status.
func (fl *FileLogger) LogActionResult(planID string, action models.Action) {
	level := "debug"
	if action.Status == models.ActionFailed {
		level = "warn"
	}
	message := fmt.Sprintf("Action %s/%s (%s): %s", planID, action.ID, action.Type, action.Status)
	if action.Error != "" {
		message += " - " + action.Error
	}
	fl.event(level, message)
}

// LogRecovery records the strategy chosen for a failed goal.
func (fl *FileLogger) LogRecovery(goal models.Goal, failure models.FailureType, strategy models.RecoveryStrategy, attempt int) {
	fl.event("warn", fmt.Sprintf("Goal %s recovery attempt %d: failure %s, strategy %s",
		goal.ID, attempt, failure, strategy))
}

// LogGoalComplete records a goal's terminal status.
func (fl *FileLogger) LogGoalComplete(goal models.Goal, duration time.Duration) {
	message := fmt.Sprintf("Goal %s %s: duration %.1fs", goal.ID, goal.Status, duration.Seconds())
	if goal.FailureReason != "" {
		message += ", reason: " + goal.FailureReason
	}
	fl.event("info", message)
}

// LogSummary writes the run summary.
func (fl *FileLogger) LogSummary(summary models.ExecutionSummary) {
	if !fl.shouldLog("info") {
		return
	}

	ts := timestamp()
	status := "SUCCESS"
	if summary.Failed > 0 {
		if summary.Succeeded == 0 {
			status = "FAILED"
		} else {
			status = "PARTIAL"
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n[%s] === RUN SUMMARY ===\n", ts)
	fmt.Fprintf(&b, "[%s] Total goals:  %d\n", ts, summary.TotalGoals)
	fmt.Fprintf(&b, "[%s] Succeeded:    %d\n", ts, summary.Succeeded)
	fmt.Fprintf(&b, "[%s] Failed:       %d\n", ts, summary.Failed)
	fmt.Fprintf(&b, "[%s] Cancelled:    %d\n", ts, summary.Cancelled)
	fmt.Fprintf(&b, "[%s] Recoveries:   %d\n", ts, summary.Recoveries)
	fmt.Fprintf(&b, "[%s] Total time:   %.1fs\n", ts, summary.Duration.Seconds())
	fmt.Fprintf(&b, "[%s] Status:       %s (%d/%d goals succeeded)\n", ts, status, summary.Succeeded, summary.TotalGoals)
	for _, g := range summary.FailedGoals {
		fmt.Fprintf(&b, "[%s]   failed %s (%s): %s\n", ts, g.ID, g.Status, g.FailureReason)
	}
	for _, id := range summary.StalledGoalIDs {
		fmt.Fprintf(&b, "[%s]   stalled %s\n", ts, id)
	}
	fmt.Fprintf(&b, "[%s] Completed at: %s\n", ts, time.Now().Format(time.RFC3339))
	fl.writeRunLog(b.String())
}

// LogPlanComplete records the plan outcome in the run log and writes
// plans/plan-<id>.log with every action's status, params, result and error.
func (fl *FileLogger) LogPlanComplete(plan *models.Plan) {
	message := fmt.Sprintf("Plan %s %s", plan.ID, plan.Status)
	if plan.FailureReason != "" {
		message += ": " + plan.FailureReason
	}
	fl.event("info", message)

	if err := fl.writePlanLog(plan); err != nil {
		fl.logWithLevel("ERROR", err.Error())
	}
}

func (fl *FileLogger) writePlanLog(plan *models.Plan) error {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Plan %s (goal %s) ===\n", plan.ID, plan.GoalID)
	fmt.Fprintf(&b, "Status: %s\n", plan.Status)
	if plan.FailureReason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", plan.FailureReason)
	}
	b.WriteString("\n")

	for _, a := range plan.Actions {
		critical := ""
		if a.Critical {
			critical = " [critical]"
		}
		fmt.Fprintf(&b, "#### %s (%s)%s - %s\n", a.ID, a.Type, critical, a.Status)
		if len(a.DependsOn) > 0 {
			fmt.Fprintf(&b, "Depends on: %s\n", strings.Join(a.DependsOn, ", "))
		}
		if len(a.Params) > 0 {
			keys := make([]string, 0, len(a.Params))
			for k := range a.Params {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			b.WriteString("Params:\n")
			for _, k := range keys {
				fmt.Fprintf(&b, "  %s: %s\n", k, a.Params[k])
			}
		}
		fmt.Fprintf(&b, "Attempts: %d\n", a.Attempts)
		if d := a.Duration(); d > 0 {
			fmt.Fprintf(&b, "Duration: %.3fs\n", d.Seconds())
		}
		if a.Result != nil {
			fmt.Fprintf(&b, "Result:\n%v\n", a.Result)
		}
		if a.Error != "" {
			fmt.Fprintf(&b, "Error:\n%s\n", a.Error)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Logged at: %s\n", time.Now().Format(time.RFC3339))

	fl.mu.Lock()
	defer fl.mu.Unlock()
	path := filepath.Join(fl.plansDir, fmt.Sprintf("plan-%s.log", plan.ID))
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write plan log: %w", err)
	}
	return nil
}

func (fl *FileLogger) writeRunLog(s string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.runLog == nil {
		return
	}
	fl.runLog.WriteString(s)
}

// Close flushes and closes the run log. Calling it twice is safe.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog == nil {
		return nil
	}
	if err := fl.runLog.Sync(); err != nil {
		fl.runLog.Close()
		fl.runLog = nil
		return fmt.Errorf("failed to sync run log: %w", err)
	}
	err := fl.runLog.Close()
	fl.runLog = nil
	if err != nil {
		return fmt.Errorf("failed to close run log: %w", err)
	}
	return nil
}
