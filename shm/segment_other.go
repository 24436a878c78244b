//go:build unix && !linux

package shm

import (
	"os"
)

// createBackingFile creates a file in the shared-memory directory and unlinks
// it immediately, leaving only the descriptor.
func createBackingFile(size int) (*os.File, error) {
	dir := os.TempDir()
	if st, err := os.Stat("/dev/shm"); err == nil && st.IsDir() {
		dir = "/dev/shm"
	}

	f, err := os.CreateTemp(dir, "vitalstream-ring-*")
	if err != nil {
		return nil, err
	}

	if err := os.Remove(f.Name()); err != nil {
		_ = f.Close()
		return nil, err
	}

	if err := f.Truncate(int64(size)); err != nil {
		_ = f.Close()
		return nil, err
	}

	return f, nil
}
