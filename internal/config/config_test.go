package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

// TestDefaultConfig verifies default configuration values
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MaxConcurrency != 4 {
		t.Errorf("MaxConcurrency = %d, want 4", cfg.MaxConcurrency)
	}
	if cfg.ActionTimeout != 5*time.Minute {
		t.Errorf("ActionTimeout = %v, want 5m", cfg.ActionTimeout)
	}
	if cfg.ExecutionMode != "parallel" {
		t.Errorf("ExecutionMode = %q, want parallel", cfg.ExecutionMode)
	}
	if cfg.LogDir != ".pursuit/logs" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, ".pursuit/logs")
	}
	if cfg.Recovery.MaxAttempts != 3 {
		t.Errorf("Recovery.MaxAttempts = %d, want 3", cfg.Recovery.MaxAttempts)
	}
	if cfg.Recovery.LearningRate != 0.2 || cfg.Recovery.Prior != 0.5 {
		t.Errorf("Recovery rate/prior = %v/%v, want 0.2/0.5", cfg.Recovery.LearningRate, cfg.Recovery.Prior)
	}
	if cfg.Snapshot.Backend != SnapshotBackendFile {
		t.Errorf("Snapshot.Backend = %q, want file", cfg.Snapshot.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v, want nil", err)
	}
}

// TestLoadConfigValidFile tests loading a fully populated YAML config file
func TestLoadConfigValidFile(t *testing.T) {
	configPath := writeConfig(t, `max_concurrency: 8
action_timeout: 30s
execution_mode: sequential
log_level: debug
log_dir: /tmp/logs
dry_run: true
scheduler:
  min_priority: 0
  max_priority: 100
recovery:
  enabled: false
  learning_rate: 0.3
  prior: 0.4
  max_attempts: 5
  retry_delay: 250ms
  db_path: ""
snapshot:
  backend: redis
  redis_addr: localhost:6379
  redis_key: team:run
`)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	checks := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"MaxConcurrency", cfg.MaxConcurrency, 8},
		{"ActionTimeout", cfg.ActionTimeout, 30 * time.Second},
		{"ExecutionMode", cfg.ExecutionMode, "sequential"},
		{"LogLevel", cfg.LogLevel, "debug"},
		{"LogDir", cfg.LogDir, "/tmp/logs"},
		{"DryRun", cfg.DryRun, true},
		{"Scheduler.MinPriority", cfg.Scheduler.MinPriority, 0},
		{"Scheduler.MaxPriority", cfg.Scheduler.MaxPriority, 100},
		{"Recovery.Enabled", cfg.Recovery.Enabled, false},
		{"Recovery.LearningRate", cfg.Recovery.LearningRate, 0.3},
		{"Recovery.Prior", cfg.Recovery.Prior, 0.4},
		{"Recovery.MaxAttempts", cfg.Recovery.MaxAttempts, 5},
		{"Recovery.RetryDelay", cfg.Recovery.RetryDelay, 250 * time.Millisecond},
		{"Recovery.DBPath", cfg.Recovery.DBPath, ""},
		{"Snapshot.Backend", cfg.Snapshot.Backend, "redis"},
		{"Snapshot.Path", cfg.Snapshot.Path, ".pursuit/snapshot.json"},
		{"Snapshot.RedisAddr", cfg.Snapshot.RedisAddr, "localhost:6379"},
		{"Snapshot.RedisKey", cfg.Snapshot.RedisKey, "team:run"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

// TestLoadConfigFileNotExists tests fallback to defaults when file doesn't exist
func TestLoadConfigFileNotExists(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadConfig() should not error on missing file, got: %v", err)
	}
	if cfg.MaxConcurrency != 4 {
		t.Errorf("MaxConcurrency = %d, want 4 (default)", cfg.MaxConcurrency)
	}
}

// TestLoadConfigInvalid tests error handling for malformed files
func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"malformed yaml", "max_concurrency: 5\naction_timeout: [this is not valid\n", "parse"},
		{"bad timeout", "action_timeout: soon\n", "action_timeout"},
		{"bad retry delay", "recovery:\n  retry_delay: later\n", "retry_delay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("LoadConfig() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %q", err, tt.wantErr)
			}
		})
	}
}

// TestLoadConfigPartialSections tests that a nested section only overrides the keys it names
func TestLoadConfigPartialSections(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `log_level: warn
recovery:
  max_attempts: 7
snapshot:
  path: state.json
`))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if cfg.Recovery.MaxAttempts != 7 {
		t.Errorf("Recovery.MaxAttempts = %d, want 7", cfg.Recovery.MaxAttempts)
	}
	if !cfg.Recovery.Enabled {
		t.Error("Recovery.Enabled should keep its default")
	}
	if cfg.Recovery.DBPath != ".pursuit/learning/strategies.db" {
		t.Errorf("Recovery.DBPath = %q, want default", cfg.Recovery.DBPath)
	}
	if cfg.Snapshot.Path != "state.json" || cfg.Snapshot.Backend != SnapshotBackendFile {
		t.Errorf("Snapshot = %+v, want file backend at state.json", cfg.Snapshot)
	}
	if cfg.ActionTimeout != 5*time.Minute {
		t.Errorf("ActionTimeout = %v, want 5m (default)", cfg.ActionTimeout)
	}
}

// TestLoadConfigFromDir tests loading config from .pursuit/config.yaml
func TestLoadConfigFromDir(t *testing.T) {
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, ".pursuit")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte("max_concurrency: 3\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadConfigFromDir(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfigFromDir() error = %v", err)
	}
	if cfg.MaxConcurrency != 3 {
		t.Errorf("MaxConcurrency = %d, want 3", cfg.MaxConcurrency)
	}

	empty, err := LoadConfigFromDir(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfigFromDir() should not error on missing config, got: %v", err)
	}
	if empty.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info (default)", empty.LogLevel)
	}
}

// TestEmptyConfigFile tests that an empty or comment-only file yields defaults
func TestEmptyConfigFile(t *testing.T) {
	for _, content := range []string{"", "# nothing here\n"} {
		cfg, err := LoadConfig(writeConfig(t, content))
		if err != nil {
			t.Fatalf("LoadConfig(%q) error = %v", content, err)
		}
		if cfg.ExecutionMode != "parallel" {
			t.Errorf("ExecutionMode = %q, want parallel", cfg.ExecutionMode)
		}
	}
}

// TestMergeWithFlags tests CLI flag precedence over config values
func TestMergeWithFlags(t *testing.T) {
	cfg := DefaultConfig()

	mode := "sequential"
	maxConcurrency := 10
	timeout := 2 * time.Second
	logDir := "/custom/logs"
	dryRun := true
	cfg.MergeWithFlags(&mode, &maxConcurrency, &timeout, &logDir, &dryRun)

	if cfg.ExecutionMode != mode {
		t.Errorf("ExecutionMode = %q, want %q", cfg.ExecutionMode, mode)
	}
	if cfg.MaxConcurrency != maxConcurrency {
		t.Errorf("MaxConcurrency = %d, want %d", cfg.MaxConcurrency, maxConcurrency)
	}
	if cfg.ActionTimeout != timeout {
		t.Errorf("ActionTimeout = %v, want %v", cfg.ActionTimeout, timeout)
	}
	if cfg.LogDir != logDir {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, logDir)
	}
	if !cfg.DryRun {
		t.Error("DryRun = false, want true")
	}
}

// TestMergeWithFlagsNil tests that nil flags leave configuration untouched
func TestMergeWithFlagsNil(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeWithFlags(nil, nil, nil, nil, nil)

	def := DefaultConfig()
	if cfg.ExecutionMode != def.ExecutionMode || cfg.MaxConcurrency != def.MaxConcurrency ||
		cfg.ActionTimeout != def.ActionTimeout || cfg.LogDir != def.LogDir || cfg.DryRun != def.DryRun {
		t.Errorf("MergeWithFlags(nil...) changed config: %+v", cfg)
	}
}

// TestConfigValidation tests validation of configuration values
func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero concurrency", func(c *Config) { c.MaxConcurrency = 0 }, true},
		{"unknown mode", func(c *Config) { c.ExecutionMode = "batch" }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, true},
		{"negative timeout", func(c *Config) { c.ActionTimeout = -time.Second }, true},
		{"zero timeout", func(c *Config) { c.ActionTimeout = 0 }, false},
		{"inverted priorities", func(c *Config) { c.Scheduler.MinPriority = 9; c.Scheduler.MaxPriority = 2 }, true},
		{"learning rate zero", func(c *Config) { c.Recovery.LearningRate = 0 }, true},
		{"learning rate one", func(c *Config) { c.Recovery.LearningRate = 1 }, false},
		{"prior above one", func(c *Config) { c.Recovery.Prior = 1.1 }, true},
		{"zero attempts", func(c *Config) { c.Recovery.MaxAttempts = 0 }, true},
		{"recovery disabled skips checks", func(c *Config) {
			c.Recovery.Enabled = false
			c.Recovery.MaxAttempts = 0
		}, false},
		{"negative retry delay", func(c *Config) { c.Recovery.RetryDelay = -time.Second }, true},
		{"file backend without path", func(c *Config) { c.Snapshot.Path = "" }, true},
		{"redis without address", func(c *Config) { c.Snapshot.Backend = SnapshotBackendRedis }, true},
		{"redis with address", func(c *Config) {
			c.Snapshot.Backend = SnapshotBackendRedis
			c.Snapshot.RedisAddr = "localhost:6379"
		}, false},
		{"no snapshots", func(c *Config) { c.Snapshot.Backend = SnapshotBackendNone; c.Snapshot.Path = "" }, false},
		{"unknown backend", func(c *Config) { c.Snapshot.Backend = "s3" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestValidLogLevels tests every accepted log level
func TestValidLogLevels(t *testing.T) {
	for _, level := range []string{"trace", "debug", "info", "warn", "error"} {
		cfg := DefaultConfig()
		cfg.LogLevel = level
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() with log_level %q error = %v", level, err)
		}
	}
}
