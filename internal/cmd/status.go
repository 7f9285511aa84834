package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/harrison/pursuit/internal/config"
	"github.com/harrison/pursuit/internal/models"
	"github.com/harrison/pursuit/internal/snapshot"
)

// NewStatusCommand creates the 'pursuit status' command
func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the goals of the last saved run",
		Long: `Read the last snapshot and list every goal with its status, priority,
attempts and failure reason, followed by per-status totals.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .pursuit/config.yaml)")
	cmd.Flags().Bool("all", false, "Show full goal IDs and failure reasons")

	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	output := cmd.OutOrStdout()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Snapshot.Backend == config.SnapshotBackendNone {
		fmt.Fprintf(output, "Snapshots are disabled (snapshot.backend is none).\n")
		return nil
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	backend, err := openSnapshots(ctx, cfg.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to open snapshot backend: %w", err)
	}
	defer backend.Close()

	snap, err := loadSnapshot(ctx, backend)
	if err != nil {
		return err
	}
	if snap == nil {
		fmt.Fprintf(output, "No snapshot found.\n")
		return nil
	}

	all, _ := cmd.Flags().GetBool("all")
	printStatus(output, snap, newPalette(output), all)
	return nil
}

func printStatus(output io.Writer, snap *snapshot.Snapshot, colors palette, full bool) {
	fmt.Fprintf(output, "Snapshot saved at %s: %d goal(s), %d plan(s)\n\n",
		snap.SavedAt.Format("2006-01-02 15:04:05"), len(snap.Goals), len(snap.Plans))

	counts := make(map[models.GoalStatus]int)
	for _, goal := range snap.Goals {
		counts[goal.Status]++

		id := shortID(goal.ID)
		description := truncate(goal.Description, 48)
		if full {
			id = goal.ID
			description = goal.Description
		}
		c := colors.goalStatus(goal.Status)
		fmt.Fprintf(output, "%s %-8s %-20s p%-3d attempts %-2d %s\n",
			c.Sprint(goal.Status.Icon()), id, c.Sprint(goal.Status), goal.Priority, goal.Attempts, description)

		if goal.FailureReason != "" {
			reason := goal.FailureReason
			if !full {
				reason = truncate(reason, 96)
			}
			fmt.Fprintf(output, "    %s\n", colors.dim.Sprint(reason))
		}
	}

	fmt.Fprintln(output)
	for _, status := range []models.GoalStatus{
		models.GoalCompletedSuccess,
		models.GoalCompletedNoAction,
		models.GoalFailedPlanning,
		models.GoalFailedExecution,
		models.GoalCancelled,
		models.GoalPausedDependency,
		models.GoalActive,
		models.GoalPending,
	} {
		if n := counts[status]; n > 0 {
			fmt.Fprintf(output, "  %-20s %d\n", status, n)
		}
	}
}
