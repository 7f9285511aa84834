package cmd

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrison/pursuit/internal/executor"
	"github.com/harrison/pursuit/internal/handlers"
	"github.com/harrison/pursuit/internal/parser"
)

// NewValidateCommand creates and returns the validate subcommand
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <goals-file-or-directory>",
		Short: "Validate a goals file",
		Long: `Parse and validate a goals file, checking for:
  - Missing keys and descriptions, duplicate goals
  - Goal dependencies that are unknown or circular
  - Actions with unknown types or alternatives
  - Action dependencies and references that do not resolve

A directory is read as a split goals file (1-setup.md, 2-build.yaml, ...).

Exit code: 0 if valid, 1 if errors found`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateGoalsFile(args[0], cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}

	return cmd
}

// goalPreview is one goal of a validated file with its action levels.
type goalPreview struct {
	def    parser.GoalDef
	levels [][]string
}

func validateGoalsFile(path string, output io.Writer) error {
	colors := newPalette(output)

	file, err := parser.ParseFile(path)
	if err != nil {
		fmt.Fprintf(output, "%s %v\n", colors.fail.Sprint("✗"), err)
		return fmt.Errorf("failed to parse goals file: %w", err)
	}

	previews, err := checkGoalsFile(file, handlers.NewDefaultRegistry())
	if err != nil {
		fmt.Fprintf(output, "Validation errors in %s:\n", file.FilePath)
		for _, line := range strings.Split(err.Error(), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				fmt.Fprintf(output, "  %s %s\n", colors.fail.Sprint("✗"), line)
			}
		}
		return fmt.Errorf("goals file %s is invalid", filepath.Base(file.FilePath))
	}

	printPreview(output, file, previews, colors, true)
	fmt.Fprintf(output, "\n%s Goals file is valid: %d goal(s), %d action(s)\n",
		colors.ok.Sprint("✓"), len(previews), countActions(previews))
	return nil
}

// checkGoalsFile validates the file and every goal's actions against
// registry, and returns the goals in scheduling order.
func checkGoalsFile(file *parser.GoalsFile, registry *executor.Registry) ([]goalPreview, error) {
	if err := file.Validate(); err != nil {
		return nil, err
	}
	ordered, err := file.Ordered()
	if err != nil {
		return nil, err
	}

	var errs []error
	previews := make([]goalPreview, 0, len(ordered))
	for _, def := range ordered {
		if err := executor.ValidateSpecs(def.Actions, registry.Supports); err != nil {
			errs = append(errs, fmt.Errorf("goal %s: %w", def.Key, err))
			continue
		}
		levels, err := executor.CalculateLevels(executor.WithReferenceDependencies(def.Actions))
		if err != nil {
			errs = append(errs, fmt.Errorf("goal %s: %w", def.Key, err))
			continue
		}
		previews = append(previews, goalPreview{def: def, levels: levels})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return previews, nil
}

func printPreview(output io.Writer, file *parser.GoalsFile, previews []goalPreview, colors palette, detailed bool) {
	fmt.Fprintf(output, "Goals file: %s (%s)\n", colors.bold.Sprint(file.Name), file.FilePath)
	for i, p := range previews {
		deps := ""
		if len(p.def.DependsOn) > 0 {
			deps = colors.dim.Sprintf(" after %s", strings.Join(p.def.DependsOn, ", "))
		}
		fmt.Fprintf(output, "  %d. %s [priority %d] %s%s\n", i+1,
			colors.bold.Sprint(p.def.Key), p.def.Priority, p.def.Description, deps)

		if len(p.def.Actions) == 0 {
			fmt.Fprintf(output, "     %s\n", colors.dim.Sprint("no actions"))
			continue
		}
		fmt.Fprintf(output, "     %d action(s) in %d level(s)\n", len(p.def.Actions), len(p.levels))
		if !detailed {
			continue
		}
		for n, level := range p.levels {
			fmt.Fprintf(output, "       level %d: %s\n", n+1, strings.Join(level, ", "))
		}
	}
}

func countActions(previews []goalPreview) int {
	n := 0
	for _, p := range previews {
		n += len(p.def.Actions)
	}
	return n
}
