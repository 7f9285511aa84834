package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrison/pursuit/internal/learning"
	"github.com/harrison/pursuit/internal/models"
	"github.com/harrison/pursuit/internal/recovery"
)

// NewStrategiesCommand creates the 'pursuit strategies' command
func NewStrategiesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategies",
		Short: "Show learned recovery strategy estimates",
		Long: `Display the success rate learned for every recovery strategy that has
been applied to each failure type, best first. The strategy a failure
type would currently receive is marked with *.

Examples:
  pursuit strategies
  pursuit strategies --recent 10     # also list the latest outcomes
  pursuit strategies --clear         # forget everything (asks first)`,
		Args: cobra.NoArgs,
		RunE: runStrategies,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .pursuit/config.yaml)")
	cmd.Flags().String("db-path", "", "Path to the learning database (overrides config)")
	cmd.Flags().Int("recent", 0, "Number of recent outcomes to list")
	cmd.Flags().Bool("clear", false, "Delete all learned estimates and outcomes")
	cmd.Flags().Bool("yes", false, "Do not ask for confirmation")

	return cmd
}

func runStrategies(cmd *cobra.Command, args []string) error {
	output := cmd.OutOrStdout()

	dbPath, _ := cmd.Flags().GetString("db-path")
	if dbPath == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dbPath = cfg.Recovery.DBPath
	}
	if dbPath == "" {
		fmt.Fprintf(output, "Learned estimates are kept in memory only (recovery.db_path is empty).\n")
		return nil
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Fprintf(output, "No strategy data recorded yet.\n")
		fmt.Fprintf(output, "Database path: %s\n", dbPath)
		return nil
	}

	store, err := learning.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open learning store: %w", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if reset, _ := cmd.Flags().GetBool("clear"); reset {
		yes, _ := cmd.Flags().GetBool("yes")
		fmt.Fprintf(output, "WARNING: This will delete ALL learned strategy data in %s.\n", dbPath)
		if !yes && !confirmAction(cmd.InOrStdin(), output) {
			fmt.Fprintf(output, "Operation cancelled.\n")
			return nil
		}
		if err := store.Clear(ctx); err != nil {
			return fmt.Errorf("clear learning store: %w", err)
		}
		fmt.Fprintf(output, "Strategy data cleared.\n")
		return nil
	}

	analyzer := recovery.NewAnalyzer(recovery.WithStore(store))
	if err := analyzer.Load(ctx); err != nil {
		return err
	}
	estimates := analyzer.Estimates()
	if len(estimates) == 0 {
		fmt.Fprintf(output, "No strategy data recorded yet.\n")
		return nil
	}

	printEstimates(output, analyzer, estimates, newPalette(output))

	recent, _ := cmd.Flags().GetInt("recent")
	if recent > 0 {
		outcomes, err := store.RecentOutcomes(ctx, recent)
		if err != nil {
			return fmt.Errorf("load recent outcomes: %w", err)
		}
		printOutcomes(output, outcomes, newPalette(output))
	}
	return nil
}

func printEstimates(output io.Writer, analyzer *recovery.Analyzer, estimates []models.StrategyEstimate, colors palette) {
	fmt.Fprintf(output, "%s\n", colors.bold.Sprint("Recovery strategy estimates"))
	fmt.Fprintf(output, "  %-18s %-22s %8s %8s %9s  %s\n", "FAILURE TYPE", "STRATEGY", "ESTIMATE", "SAMPLES", "SUCCESSES", "UPDATED")

	chosen := make(map[models.FailureType]models.RecoveryStrategy)
	for _, est := range estimates {
		if _, ok := chosen[est.FailureType]; !ok {
			chosen[est.FailureType] = analyzer.SelectStrategy(est.FailureType, recovery.FailureContext{})
		}

		mark := " "
		if chosen[est.FailureType] == est.Strategy {
			mark = colors.ok.Sprint("*")
		}
		value := fmt.Sprintf("%8.3f", est.Value)
		switch {
		case est.Value >= 0.6:
			value = colors.ok.Sprint(value)
		case est.Value < 0.4:
			value = colors.fail.Sprint(value)
		}
		fmt.Fprintf(output, "%s %-18s %-22s %s %8d %9d  %s\n", mark,
			est.FailureType, est.Strategy, value, est.Samples, est.Successes,
			colors.dim.Sprint(est.UpdatedAt.Format("2006-01-02 15:04")))
	}
}

func printOutcomes(output io.Writer, outcomes []learning.Outcome, colors palette) {
	fmt.Fprintf(output, "\n%s\n", colors.bold.Sprint("Recent outcomes"))
	for _, o := range outcomes {
		result := colors.ok.Sprint("success")
		if !o.Success {
			result = colors.fail.Sprint("failure")
		}
		fmt.Fprintf(output, "  %s  %-18s %-22s %s -> %.3f\n",
			colors.dim.Sprint(o.RecordedAt.Format("2006-01-02 15:04:05")),
			o.FailureType, o.Strategy, result, o.EstimateAfter)
	}
}

// confirmAction prompts the user for confirmation
func confirmAction(input io.Reader, output io.Writer) bool {
	fmt.Fprintf(output, "Are you sure? (y/N): ")

	reader := bufio.NewReader(input)
	response, err := reader.ReadString('\n')
	if err != nil && response == "" {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
