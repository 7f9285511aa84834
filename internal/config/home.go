package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// HomeEnv overrides the working directory that holds config, logs and state.
const HomeEnv = "PURSUIT_HOME"

// HomeDir returns the pursuit working directory
// Priority order:
//  1. PURSUIT_HOME environment variable (if set)
//  2. .pursuit under dir
//
// The directory is created if it doesn't exist
func HomeDir(dir string) (string, error) {
	home := os.Getenv(HomeEnv)
	if home == "" {
		if dir == "" {
			cwd, err := os.Getwd()
			if err != nil {
				return "", fmt.Errorf("get working directory: %w", err)
			}
			dir = cwd
		}
		home = filepath.Join(dir, ".pursuit")
	}

	if err := os.MkdirAll(home, 0755); err != nil {
		return "", fmt.Errorf("create pursuit home directory: %w", err)
	}
	return home, nil
}

// ResolvePaths makes relative log, database and snapshot paths absolute
// against base. Empty paths stay empty.
func (c *Config) ResolvePaths(base string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.LogDir = resolve(c.LogDir)
	c.Recovery.DBPath = resolve(c.Recovery.DBPath)
	c.Snapshot.Path = resolve(c.Snapshot.Path)
}
