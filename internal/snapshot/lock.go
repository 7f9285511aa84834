package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// fileLock wraps a flock lock so that separate pursuit processes sharing a
// working directory never interleave snapshot writes.
type fileLock struct {
	flock *flock.Flock
	path  string
}

func newFileLock(path string) *fileLock {
	return &fileLock{
		flock: flock.New(path),
		path:  path,
	}
}

func (fl *fileLock) Lock() error {
	if err := fl.flock.Lock(); err != nil {
		return fmt.Errorf("acquire lock on %s: %w", fl.path, err)
	}
	return nil
}

// RLock takes a shared lock; readers may overlap each other but not a writer.
func (fl *fileLock) RLock() error {
	if err := fl.flock.RLock(); err != nil {
		return fmt.Errorf("acquire read lock on %s: %w", fl.path, err)
	}
	return nil
}

func (fl *fileLock) Unlock() error {
	if err := fl.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock on %s: %w", fl.path, err)
	}
	return nil
}

// atomicWrite writes data to a temp file in the target directory and renames
// it over path. Readers see either the old document or the new one.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	// same directory keeps the rename on one filesystem
	tempFile, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		return fmt.Errorf("set permissions: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", path, err)
	}

	tempFile = nil
	return nil
}
