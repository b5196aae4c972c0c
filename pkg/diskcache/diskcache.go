// Package diskcache resolves and manages the on-disk cache root described
// in spec §6: a repos/ directory of bare git mirrors, an index/ directory
// owned by the Registry Index Reader, and a root-level advisory lock file.
package diskcache

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/theckman/go-flock"
)

const dirName = "cargo-unmaintained"

// Root resolves the cache root directory, creating it if absent. It
// mirrors the teacher's getCacheDir XDG/home fallback chain, generalized
// from a single flat cache file to the repos/index/lock layout of spec §6.
func Root() (string, error) {
	dir, err := rootDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Join(dir, "repos"), 0o755); err != nil {
		return "", fmt.Errorf("preparing cache root: %w", err)
	}
	return dir, nil
}

func rootDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, dirName), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(homeDir, "Library", "Caches", dirName), nil
	}

	return filepath.Join(homeDir, ".cache", dirName), nil
}

// Lock is the cache-root advisory file lock of spec §4.H/§5: writes to the
// cache (a new repository clone, an index update) are serialized by an
// exclusive lock; reads require only a shared lock so concurrent
// classifications never block on each other.
type Lock struct {
	flock *flock.Flock
}

// NewLock opens (without acquiring) the advisory lock at cacheRoot/lock.
func NewLock(cacheRoot string) *Lock {
	return &Lock{flock: flock.New(filepath.Join(cacheRoot, "lock"))}
}

// Exclusive blocks until the write lock is held, for cache-mutating
// operations (a new clone, an index update).
func (l *Lock) Exclusive() (func(), error) {
	if err := l.flock.Lock(); err != nil {
		return nil, fmt.Errorf("cache-lock-failed: %w", err)
	}
	return func() { _ = l.flock.Unlock() }, nil
}

// Shared blocks until the read lock is held, for cache reads that must not
// race a concurrent writer's in-progress rename.
func (l *Lock) Shared() (func(), error) {
	if err := l.flock.RLock(); err != nil {
		return nil, fmt.Errorf("cache-lock-failed: %w", err)
	}
	return func() { _ = l.flock.Unlock() }, nil
}

// Purge deletes the entire cache root, implementing --purge.
func Purge() error {
	dir, err := rootDir()
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}
