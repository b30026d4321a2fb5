//go:build !windows

package store

import (
	stderrors "errors"
	"os"
	"syscall"

	"github.com/hpungsan/kiki/internal/errors"
)

// openFileNoFollow opens a file for writing with O_NOFOLLOW so a symlink
// planted at the temp path is never followed. O_CLOEXEC keeps the FD out of
// hook subprocesses.
func openFileNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	fd, err := syscall.Open(path, flag|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, uint32(perm))
	if err != nil {
		if stderrors.Is(err, syscall.ELOOP) {
			return nil, errors.NewInvalidRequest("cannot write to symlink")
		}
		return nil, err
	}
	return os.NewFile(uintptr(fd), path), nil
}

// openFileNoFollowRead opens the status file for reading.
// A missing file maps to STATUS_MISSING, anything else to STATUS_CORRUPT.
func openFileNoFollowRead(path string) (*os.File, error) {
	fd, err := syscall.Open(path, syscall.O_RDONLY|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, 0)
	if err != nil {
		if stderrors.Is(err, syscall.ENOENT) {
			return nil, errors.NewStatusMissing(err)
		}
		return nil, errors.NewStatusCorrupt(err)
	}
	return os.NewFile(uintptr(fd), path), nil
}
