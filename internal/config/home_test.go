package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHomeDir(t *testing.T) {
	t.Run("defaults to .pursuit under dir", func(t *testing.T) {
		t.Setenv(HomeEnv, "")
		dir := t.TempDir()

		home, err := HomeDir(dir)
		if err != nil {
			t.Fatalf("HomeDir() error = %v", err)
		}
		if want := filepath.Join(dir, ".pursuit"); home != want {
			t.Errorf("HomeDir() = %q, want %q", home, want)
		}
		if info, err := os.Stat(home); err != nil || !info.IsDir() {
			t.Errorf("HomeDir() should create %s", home)
		}
	})

	t.Run("environment override", func(t *testing.T) {
		override := filepath.Join(t.TempDir(), "custom")
		t.Setenv(HomeEnv, override)

		home, err := HomeDir(t.TempDir())
		if err != nil {
			t.Fatalf("HomeDir() error = %v", err)
		}
		if home != override {
			t.Errorf("HomeDir() = %q, want %q", home, override)
		}
	})
}

func TestResolvePaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Snapshot.Path = "/abs/snapshot.json"
	cfg.Recovery.DBPath = ""
	cfg.ResolvePaths("/work")

	if cfg.LogDir != "/work/.pursuit/logs" {
		t.Errorf("LogDir = %q", cfg.LogDir)
	}
	if cfg.Snapshot.Path != "/abs/snapshot.json" {
		t.Errorf("absolute path changed: %q", cfg.Snapshot.Path)
	}
	if cfg.Recovery.DBPath != "" {
		t.Errorf("empty path changed: %q", cfg.Recovery.DBPath)
	}
}
