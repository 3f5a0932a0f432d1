//go:build windows

package state

import (
	"os"
	"path/filepath"

	"github.com/hpungsan/wm/internal/errors"
)

// Lock is an exclusive lock backed by a create-exclusive file.
type Lock struct {
	path string
	file *os.File
}

// TryLock creates path exclusively. Returns LOCKED if it already exists.
// A crashed process leaves the file behind; delete it by hand to recover.
func TryLock(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, errors.NewIO("create lock directory", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return nil, errors.NewLocked(path)
		}
		return nil, errors.NewIO("open lock file", err)
	}
	return &Lock{path: path, file: file}, nil
}

// Release drops the lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	if rmErr := os.Remove(l.path); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}
