//go:build linux

package shm

import (
	"os"

	"golang.org/x/sys/unix"
)

// createBackingFile uses memfd_create so the segment has no name in any
// filesystem and is reclaimed once every descriptor and mapping is gone.
func createBackingFile(size int) (*os.File, error) {
	fd, err := unix.MemfdCreate("vitalstream-ring", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, err
	}

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	return os.NewFile(uintptr(fd), "memfd:vitalstream-ring"), nil
}
