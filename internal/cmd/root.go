package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harrison/pursuit/internal/config"
	"github.com/harrison/pursuit/internal/snapshot"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for pursuit
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pursuit",
		Short: "Goal-driven plan orchestration with adaptive failure recovery",
		Long: `Pursuit works through a prioritized set of goals. Each goal is turned
into a plan of actions, the plan is executed sequentially or in parallel,
and failures are classified and recovered from with strategies whose
success rates are learned across runs.

Goals are read from Markdown or YAML goals files.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewStrategiesCommand())
	cmd.AddCommand(NewStatusCommand())

	return cmd
}

// loadConfig reads the --config file, or .pursuit/config.yaml in the working
// directory, and resolves relative paths against the working directory.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}

	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		home, err := config.HomeDir(cwd)
		if err != nil {
			return nil, err
		}
		configPath = filepath.Join(home, "config.yaml")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}
	cfg.ResolvePaths(cwd)
	return cfg, nil
}

// openSnapshots returns the configured snapshot backend, or nil for "none".
func openSnapshots(ctx context.Context, cfg config.SnapshotConfig) (snapshot.Backend, error) {
	switch cfg.Backend {
	case config.SnapshotBackendNone:
		return nil, nil
	case config.SnapshotBackendRedis:
		backend, err := snapshot.NewRedisBackend(ctx, snapshot.RedisConfig{
			Address: cfg.RedisAddr,
			Key:     cfg.RedisKey,
		})
		if err != nil {
			return nil, err
		}
		return backend, nil
	case config.SnapshotBackendFile:
		backend, err := snapshot.NewFileBackend(cfg.Path)
		if err != nil {
			return nil, err
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.Backend)
	}
}

// loadSnapshot returns the saved snapshot, or nil when nothing was saved.
func loadSnapshot(ctx context.Context, backend snapshot.Backend) (*snapshot.Snapshot, error) {
	snap, err := backend.Load(ctx)
	if errors.Is(err, snapshot.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return snap, nil
}
