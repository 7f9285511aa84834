package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileBackend keeps the snapshot in a JSON file guarded by "<path>.lock".
type FileBackend struct {
	path string
	lock *fileLock
}

// NewFileBackend returns a backend writing to path. The file is created on
// the first Save.
func NewFileBackend(path string) (*FileBackend, error) {
	if path == "" {
		return nil, errors.New("snapshot path is required")
	}
	return &FileBackend{path: path, lock: newFileLock(path + ".lock")}, nil
}

// Path returns the snapshot file path.
func (b *FileBackend) Path() string {
	return b.path
}

// Save replaces the snapshot file atomically.
func (b *FileBackend) Save(ctx context.Context, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(snap)
	if err != nil {
		return err
	}

	// the lock file lives beside the snapshot, so its directory must exist first
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	if err := b.lock.Lock(); err != nil {
		return err
	}
	defer b.lock.Unlock()

	if err := atomicWrite(b.path, data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot file. ErrNotFound is returned when it does not exist.
func (b *FileBackend) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(b.path); errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}

	if err := b.lock.RLock(); err != nil {
		return nil, err
	}
	defer b.lock.Unlock()

	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return Decode(data)
}

// Close is a no-op; the lock is only held during Save and Load.
func (b *FileBackend) Close() error {
	return nil
}
