package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// fileLock provides cross-process exclusive access to a store directory,
// using gofrs/flock so a second daemon process started against the same
// store path fails fast instead of corrupting the sqlite file or the bleve
// index underneath a live Store.
type fileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// newFileLock creates a lock file at <dir>/.store.lock.
func newFileLock(dir string) *fileLock {
	lockPath := filepath.Join(dir, ".store.lock")
	return &fileLock{path: lockPath, flock: flock.New(lockPath)}
}

// TryLock attempts to acquire the lock without blocking. Returns false if
// another process already holds it.
func (l *fileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("creating lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquiring store lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. Safe to call multiple times.
func (l *fileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("releasing store lock: %w", err)
	}
	l.locked = false
	return nil
}
