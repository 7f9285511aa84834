package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Snapshot backend names
const (
	SnapshotBackendFile  = "file"
	SnapshotBackendRedis = "redis"
	SnapshotBackendNone  = "none"
)

// SchedulerConfig bounds goal priorities
type SchedulerConfig struct {
	// MinPriority is the lowest accepted priority; lower values are clamped
	MinPriority int `yaml:"min_priority"`

	// MaxPriority is the highest accepted priority; higher values are clamped
	MaxPriority int `yaml:"max_priority"`
}

// RecoveryConfig represents failure recovery configuration
type RecoveryConfig struct {
	// Enabled turns on strategy selection after a failed plan
	Enabled bool `yaml:"enabled"`

	// LearningRate is the EMA weight of each new outcome
	LearningRate float64 `yaml:"learning_rate"`

	// Prior is the estimate of a strategy that has never been tried
	Prior float64 `yaml:"prior"`

	// MaxAttempts is how many recoveries a goal gets before GracefulAbort
	MaxAttempts int `yaml:"max_attempts"`

	// RetryDelay is the base delay of RetryWithDelay, multiplied by the attempt number
	RetryDelay time.Duration `yaml:"retry_delay"`

	// DBPath is the SQLite database holding learned estimates ("" keeps them in memory)
	DBPath string `yaml:"db_path"`
}

// SnapshotConfig represents goal/plan persistence configuration
type SnapshotConfig struct {
	// Backend is one of file, redis, none
	Backend string `yaml:"backend"`

	// Path is the snapshot file for the file backend
	Path string `yaml:"path"`

	// RedisAddr is host:port of the redis backend
	RedisAddr string `yaml:"redis_addr"`

	// RedisKey is the key the snapshot is stored under
	RedisKey string `yaml:"redis_key"`
}

// Config represents pursuit configuration options
type Config struct {
	// MaxConcurrency is the parallel-mode limit on concurrently running actions
	MaxConcurrency int `yaml:"max_concurrency"`

	// ActionTimeout applies to actions that declare no timeout of their own (0 = none)
	ActionTimeout time.Duration `yaml:"action_timeout"`

	// ExecutionMode is sequential or parallel
	ExecutionMode string `yaml:"execution_mode"`

	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where run logs will be written
	LogDir string `yaml:"log_dir"`

	// DryRun enables validation-only mode without execution
	DryRun bool `yaml:"dry_run"`

	Scheduler SchedulerConfig `yaml:"scheduler"`
	Recovery  RecoveryConfig  `yaml:"recovery"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrency: 4,
		ActionTimeout:  5 * time.Minute,
		ExecutionMode:  "parallel",
		LogLevel:       "info",
		LogDir:         ".pursuit/logs",
		DryRun:         false,
		Scheduler: SchedulerConfig{
			MinPriority: 1,
			MaxPriority: 10,
		},
		Recovery: RecoveryConfig{
			Enabled:      true,
			LearningRate: 0.2,
			Prior:        0.5,
			MaxAttempts:  3,
			RetryDelay:   time.Second,
			DBPath:       ".pursuit/learning/strategies.db",
		},
		Snapshot: SnapshotConfig{
			Backend:  SnapshotBackendFile,
			Path:     ".pursuit/snapshot.json",
			RedisKey: "pursuit:snapshot",
		},
	}
}

// LoadConfig loads configuration from the specified file path
// If the file doesn't exist, returns default configuration without error
// If the file exists but is malformed, returns an error
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Durations are strings in YAML; nested sections are merged key by key.
	type yamlRecovery struct {
		Enabled      bool    `yaml:"enabled"`
		LearningRate float64 `yaml:"learning_rate"`
		Prior        float64 `yaml:"prior"`
		MaxAttempts  int     `yaml:"max_attempts"`
		RetryDelay   string  `yaml:"retry_delay"`
		DBPath       string  `yaml:"db_path"`
	}
	type yamlConfig struct {
		MaxConcurrency int             `yaml:"max_concurrency"`
		ActionTimeout  string          `yaml:"action_timeout"`
		ExecutionMode  string          `yaml:"execution_mode"`
		LogLevel       string          `yaml:"log_level"`
		LogDir         string          `yaml:"log_dir"`
		DryRun         bool            `yaml:"dry_run"`
		Scheduler      SchedulerConfig `yaml:"scheduler"`
		Recovery       yamlRecovery    `yaml:"recovery"`
		Snapshot       SnapshotConfig  `yaml:"snapshot"`
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if yamlCfg.MaxConcurrency != 0 {
		cfg.MaxConcurrency = yamlCfg.MaxConcurrency
	}
	if yamlCfg.ActionTimeout != "" {
		timeout, err := time.ParseDuration(yamlCfg.ActionTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid action_timeout format %q: %w", yamlCfg.ActionTimeout, err)
		}
		cfg.ActionTimeout = timeout
	}
	if yamlCfg.ExecutionMode != "" {
		cfg.ExecutionMode = yamlCfg.ExecutionMode
	}
	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.LogDir != "" {
		cfg.LogDir = yamlCfg.LogDir
	}
	if yamlCfg.DryRun {
		cfg.DryRun = yamlCfg.DryRun
	}

	// Detect which nested keys were actually present so that explicit
	// false/zero values override the defaults.
	var rawMap map[string]interface{}
	if err := yaml.Unmarshal(data, &rawMap); err == nil {
		if section := sectionKeys(rawMap, "scheduler"); section != nil {
			if _, exists := section["min_priority"]; exists {
				cfg.Scheduler.MinPriority = yamlCfg.Scheduler.MinPriority
			}
			if _, exists := section["max_priority"]; exists {
				cfg.Scheduler.MaxPriority = yamlCfg.Scheduler.MaxPriority
			}
		}

		if section := sectionKeys(rawMap, "recovery"); section != nil {
			recovery := yamlCfg.Recovery
			if _, exists := section["enabled"]; exists {
				cfg.Recovery.Enabled = recovery.Enabled
			}
			if _, exists := section["learning_rate"]; exists {
				cfg.Recovery.LearningRate = recovery.LearningRate
			}
			if _, exists := section["prior"]; exists {
				cfg.Recovery.Prior = recovery.Prior
			}
			if _, exists := section["max_attempts"]; exists {
				cfg.Recovery.MaxAttempts = recovery.MaxAttempts
			}
			if _, exists := section["retry_delay"]; exists {
				delay, err := time.ParseDuration(recovery.RetryDelay)
				if err != nil {
					return nil, fmt.Errorf("invalid recovery.retry_delay format %q: %w", recovery.RetryDelay, err)
				}
				cfg.Recovery.RetryDelay = delay
			}
			if _, exists := section["db_path"]; exists {
				// Explicitly set db_path, even if empty string
				cfg.Recovery.DBPath = recovery.DBPath
			}
		}

		if section := sectionKeys(rawMap, "snapshot"); section != nil {
			snapshot := yamlCfg.Snapshot
			if _, exists := section["backend"]; exists {
				cfg.Snapshot.Backend = snapshot.Backend
			}
			if _, exists := section["path"]; exists {
				cfg.Snapshot.Path = snapshot.Path
			}
			if _, exists := section["redis_addr"]; exists {
				cfg.Snapshot.RedisAddr = snapshot.RedisAddr
			}
			if _, exists := section["redis_key"]; exists {
				cfg.Snapshot.RedisKey = snapshot.RedisKey
			}
		}
	}

	return cfg, nil
}

func sectionKeys(raw map[string]interface{}, name string) map[string]interface{} {
	section, exists := raw[name]
	if !exists || section == nil {
		return nil
	}
	keys, _ := section.(map[string]interface{})
	return keys
}

// LoadConfigFromDir loads configuration from .pursuit/config.yaml in the specified directory
// If the directory or file doesn't exist, returns default configuration without error
func LoadConfigFromDir(dir string) (*Config, error) {
	configPath := filepath.Join(dir, ".pursuit", "config.yaml")
	return LoadConfig(configPath)
}

// MergeWithFlags merges CLI flags into the configuration
// Non-nil flag values override configuration values
func (c *Config) MergeWithFlags(mode *string, maxConcurrency *int, timeout *time.Duration, logDir *string, dryRun *bool) {
	if mode != nil {
		c.ExecutionMode = *mode
	}
	if maxConcurrency != nil {
		c.MaxConcurrency = *maxConcurrency
	}
	if timeout != nil {
		c.ActionTimeout = *timeout
	}
	if logDir != nil {
		c.LogDir = *logDir
	}
	if dryRun != nil {
		c.DryRun = *dryRun
	}
}

// Validate validates the configuration values
// Returns an error if any values are invalid
func (c *Config) Validate() error {
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be >= 1, got %d", c.MaxConcurrency)
	}

	if c.ExecutionMode != "sequential" && c.ExecutionMode != "parallel" {
		return fmt.Errorf("invalid execution_mode %q, must be one of: sequential, parallel", c.ExecutionMode)
	}

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	// ActionTimeout can be 0 (no timeout) or positive, negative is invalid
	if c.ActionTimeout < 0 {
		return fmt.Errorf("action_timeout must be >= 0, got %v", c.ActionTimeout)
	}

	if c.Scheduler.MinPriority > c.Scheduler.MaxPriority {
		return fmt.Errorf("scheduler.min_priority (%d) must be <= scheduler.max_priority (%d)",
			c.Scheduler.MinPriority, c.Scheduler.MaxPriority)
	}

	if c.Recovery.Enabled {
		if c.Recovery.LearningRate <= 0 || c.Recovery.LearningRate > 1 {
			return fmt.Errorf("recovery.learning_rate must be in (0, 1], got %v", c.Recovery.LearningRate)
		}
		if c.Recovery.Prior < 0 || c.Recovery.Prior > 1 {
			return fmt.Errorf("recovery.prior must be in [0, 1], got %v", c.Recovery.Prior)
		}
		if c.Recovery.MaxAttempts < 1 {
			return fmt.Errorf("recovery.max_attempts must be >= 1, got %d", c.Recovery.MaxAttempts)
		}
		if c.Recovery.RetryDelay < 0 {
			return fmt.Errorf("recovery.retry_delay must be >= 0, got %v", c.Recovery.RetryDelay)
		}
	}

	switch c.Snapshot.Backend {
	case SnapshotBackendNone:
	case SnapshotBackendFile:
		if c.Snapshot.Path == "" {
			return fmt.Errorf("snapshot.path cannot be empty when snapshot.backend is file")
		}
	case SnapshotBackendRedis:
		if c.Snapshot.RedisAddr == "" {
			return fmt.Errorf("snapshot.redis_addr cannot be empty when snapshot.backend is redis")
		}
	default:
		return fmt.Errorf("invalid snapshot.backend %q, must be one of: file, redis, none", c.Snapshot.Backend)
	}

	return nil
}
