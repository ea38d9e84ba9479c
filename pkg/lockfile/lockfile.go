// Package lockfile implements the single-instance advisory file lock the
// lifecycle orchestrator acquires before constructing any other component.
// The standard library has no portable advisory-locking primitive
// (syscall.Flock is Unix-only), so this package is built on
// golang.org/x/sys, split by build tag per platform.
package lockfile

import (
	"errors"
	"fmt"
	"os"
)

// ErrLocked is returned by Acquire when another process already holds the
// lock.
var ErrLocked = errors.New("lockfile: already locked by another instance")

// Lock is a held advisory lock on a single file. Release it exactly once.
type Lock struct {
	file *os.File
}

// Acquire opens (creating if necessary) the lock file at path and attempts
// to take an exclusive, non-blocking advisory lock on it. It returns
// ErrLocked if another live process already holds it.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("lockfile: open %s: %w", path, err)
	}
	if err := tryLock(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	// Best-effort record of the holding PID, useful for diagnosing a stuck
	// lock manually; the lock itself is what's authoritative.
	_ = f.Truncate(0)
	_, _ = f.WriteAt([]byte(fmt.Sprintf("%d\n", os.Getpid())), 0)
	return &Lock{file: f}, nil
}

// Release drops the lock and closes the underlying file. A second call is a
// no-op and returns nil.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := unlock(l.file)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return err
	}
	return closeErr
}
