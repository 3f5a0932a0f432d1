//go:build windows

package state

import (
	"os"

	"github.com/hpungsan/wm/internal/errors"
)

// openFileNoFollow opens a file for writing.
// On Windows, O_NOFOLLOW is not available; symlink creation needs elevated privileges.
func openFileNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, flag, perm)
}

// openFileNoFollowRead opens a file for reading. See openFileNoFollow.
func openFileNoFollowRead(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("file", path)
		}
		return nil, errors.NewIO("open "+path, err)
	}
	return f, nil
}
