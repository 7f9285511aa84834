package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/pursuit/internal/config"
	"github.com/harrison/pursuit/internal/executor"
	"github.com/harrison/pursuit/internal/goals"
	"github.com/harrison/pursuit/internal/handlers"
	"github.com/harrison/pursuit/internal/learning"
	"github.com/harrison/pursuit/internal/logger"
	"github.com/harrison/pursuit/internal/models"
	"github.com/harrison/pursuit/internal/orchestrator"
	"github.com/harrison/pursuit/internal/parser"
	"github.com/harrison/pursuit/internal/planning"
	"github.com/harrison/pursuit/internal/recovery"
	"github.com/harrison/pursuit/internal/snapshot"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <goals-file-or-directory>",
		Short: "Pursue the goals of a goals file",
		Long: `Pursue every goal of a goals file in priority order.

Each goal's actions form a plan that runs sequentially or in parallel.
When a plan fails, the failure is classified and a recovery strategy is
chosen from the success rates learned in previous runs: retry after a
delay, switch an action to an alternative tool, simplify the plan,
escalate, fall back to manual handling or abort.

State is saved to a snapshot after every goal, so an interrupted run can
continue with --resume.

Configuration is loaded from .pursuit/config.yaml if present.
CLI flags override configuration file settings.

Examples:
  pursuit run goals.md
  pursuit run goals/                        # split goals file (1-*.md, 2-*.yaml)
  pursuit run --mode sequential goals.yaml
  pursuit run --dry-run goals.md            # validate and preview only
  pursuit run --timeout 2m goals.md         # default timeout per action
  pursuit run --resume goals.md             # continue from the last snapshot`,
		Args: cobra.ExactArgs(1),
		RunE: runCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .pursuit/config.yaml)")
	cmd.Flags().String("mode", "", "Plan execution mode: sequential or parallel")
	cmd.Flags().Int("max-concurrency", 0, "Maximum number of concurrently running actions in parallel mode")
	cmd.Flags().String("timeout", "", "Default action timeout (e.g., 30s, 5m; 0 = none)")
	cmd.Flags().Bool("dry-run", false, "Validate the goals file and preview plans without executing")
	cmd.Flags().String("log-dir", "", "Directory for log files")
	cmd.Flags().Bool("resume", false, "Continue from the last saved snapshot")
	cmd.Flags().Bool("verbose", false, "Show action-level progress")

	return cmd
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := mergeRunFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	colors := newPalette(out)

	fmt.Fprintf(out, "Loading goals from %s...\n", args[0])
	file, err := parser.ParseFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to load goals file: %w", err)
	}

	registry := handlers.NewDefaultRegistry(handlers.WithBaseDir(baseDir(file.FilePath)))
	previews, err := checkGoalsFile(file, registry)
	if err != nil {
		return fmt.Errorf("invalid goals file: %w", err)
	}

	if cfg.DryRun {
		fmt.Fprintln(out)
		printPreview(out, file, previews, colors, true)
		fmt.Fprintf(out, "\nDry-run mode: %d goal(s) are valid and ready for execution (mode %s).\n",
			len(previews), cfg.ExecutionMode)
		return nil
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	logLevel := cfg.LogLevel
	if verbose {
		logLevel = "debug"
	}
	fileLog, err := logger.NewFileLogger(cfg.LogDir, logLevel)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer fileLog.Close()
	log := logger.NewMulti(logger.NewConsoleLogger(out, logLevel), fileLog)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	backend, err := openSnapshots(ctx, cfg.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to open snapshot backend: %w", err)
	}
	if backend != nil {
		defer backend.Close()
	}

	exec := executor.NewPlanExecutor(registry,
		executor.WithMaxConcurrency(cfg.MaxConcurrency),
		executor.WithDefaultTimeout(cfg.ActionTimeout),
		executor.WithActionLogger(log),
	)

	resume, _ := cmd.Flags().GetBool("resume")
	store, err := buildStore(ctx, cfg, file, exec, backend, resume, log)
	if err != nil {
		return err
	}

	opts := []orchestrator.Option{
		orchestrator.WithLogger(log),
		orchestrator.WithMode(models.ExecutionMode(cfg.ExecutionMode)),
		orchestrator.WithRetryDelay(cfg.Recovery.RetryDelay),
		orchestrator.WithMaxAttempts(cfg.Recovery.MaxAttempts),
	}
	if backend != nil {
		opts = append(opts, orchestrator.WithSnapshots(backend))
	}
	if cfg.Recovery.Enabled {
		analyzer, closeStore, err := buildAnalyzer(ctx, cfg.Recovery)
		if err != nil {
			return err
		}
		defer closeStore()
		opts = append(opts, orchestrator.WithAnalyzer(analyzer))
	}

	fmt.Fprintf(out, "\nStarting execution...\n\n")
	orch := orchestrator.New(store, exec, planning.NewStaticGenerator(file), opts...)
	summary, err := orch.Run(ctx)
	if err != nil {
		return fmt.Errorf("run interrupted: %w", err)
	}

	fmt.Fprintf(out, "Logs written to: %s\n", fileLog.RunFile())
	if summary.Failed > 0 {
		return fmt.Errorf("%d goal(s) failed", summary.Failed)
	}
	if len(summary.StalledGoalIDs) > 0 {
		return fmt.Errorf("%d goal(s) stalled behind failed dependencies", len(summary.StalledGoalIDs))
	}
	return nil
}

// mergeRunFlags applies the flags that were set on the command line.
func mergeRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	var modePtr *string
	if flags.Changed("mode") {
		mode, _ := flags.GetString("mode")
		modePtr = &mode
	}

	var maxConcurrencyPtr *int
	if flags.Changed("max-concurrency") {
		n, _ := flags.GetInt("max-concurrency")
		maxConcurrencyPtr = &n
	}

	var timeoutPtr *time.Duration
	if flags.Changed("timeout") {
		timeoutStr, _ := flags.GetString("timeout")
		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return fmt.Errorf("invalid timeout format %q: %w", timeoutStr, err)
		}
		timeoutPtr = &timeout
	}

	var logDirPtr *string
	if flags.Changed("log-dir") {
		logDir, _ := flags.GetString("log-dir")
		logDirPtr = &logDir
	}

	var dryRunPtr *bool
	if flags.Changed("dry-run") {
		dryRun, _ := flags.GetBool("dry-run")
		dryRunPtr = &dryRun
	}

	cfg.MergeWithFlags(modePtr, maxConcurrencyPtr, timeoutPtr, logDirPtr, dryRunPtr)
	return nil
}

// buildStore loads the goals into a fresh store, or restores the store from
// the last snapshot when resuming. A resumed run keeps the saved goals as
// they are; the goals file only supplies their actions.
func buildStore(ctx context.Context, cfg *config.Config, file *parser.GoalsFile, exec *executor.PlanExecutor,
	backend snapshot.Backend, resume bool, log logger.EventLogger) (*goals.Store, error) {
	priorities := goals.WithPriorityRange(cfg.Scheduler.MinPriority, cfg.Scheduler.MaxPriority)

	if resume {
		if backend == nil {
			return nil, fmt.Errorf("--resume requires a snapshot backend")
		}
		snap, err := loadSnapshot(ctx, backend)
		if err != nil {
			return nil, err
		}
		if snap != nil {
			store, err := snap.Restore(exec, priorities)
			if err != nil {
				return nil, fmt.Errorf("failed to restore snapshot: %w", err)
			}
			log.LogInfo(fmt.Sprintf("Resumed %d goal(s) from snapshot saved at %s",
				len(snap.Goals), snap.SavedAt.Format(time.RFC3339)))
			return store, nil
		}
		log.LogWarn("No snapshot found, starting a fresh run")
	}

	store := goals.NewStore(priorities)
	if _, err := planning.Load(store, file); err != nil {
		return nil, fmt.Errorf("failed to load goals: %w", err)
	}
	return store, nil
}

// buildAnalyzer creates the recovery analyzer. With a database path the
// learned estimates are loaded from and written through to SQLite.
func buildAnalyzer(ctx context.Context, cfg config.RecoveryConfig) (*recovery.Analyzer, func(), error) {
	opts := []recovery.Option{
		recovery.WithLearningRate(cfg.LearningRate),
		recovery.WithPrior(cfg.Prior),
		recovery.WithMaxAttempts(cfg.MaxAttempts),
	}
	closeStore := func() {}

	if cfg.DBPath != "" {
		store, err := learning.NewStore(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open learning store: %w", err)
		}
		closeStore = func() { store.Close() }
		opts = append(opts, recovery.WithStore(store))
	}

	analyzer := recovery.NewAnalyzer(opts...)
	if err := analyzer.Load(ctx); err != nil {
		closeStore()
		return nil, nil, err
	}
	return analyzer, closeStore, nil
}

// baseDir is the directory relative action paths resolve against.
func baseDir(path string) string {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return path
	}
	return filepath.Dir(path)
}
