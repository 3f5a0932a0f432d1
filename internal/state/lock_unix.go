//go:build !windows

package state

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/hpungsan/wm/internal/errors"
)

// Lock is an advisory exclusive lock on a file.
type Lock struct {
	file *os.File
}

// TryLock takes an exclusive flock on path without blocking.
// Returns LOCKED if another process holds it.
func TryLock(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, errors.NewIO("create lock directory", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, errors.NewIO("open lock file", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		if stderrors.Is(err, syscall.EWOULDBLOCK) {
			return nil, errors.NewLocked(path)
		}
		return nil, errors.NewIO("lock "+path, err)
	}

	// Owner pid is informational only
	_ = file.Truncate(0)
	_, _ = fmt.Fprintf(file, "%d\n", os.Getpid())

	return &Lock{file: file}, nil
}

// Release drops the lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = l.file.Close()
		return fmt.Errorf("unlocking: %w", err)
	}
	err := l.file.Close()
	l.file = nil
	return err
}
