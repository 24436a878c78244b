//go:build unix

package shm

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/c360/vitalstream/errors"
)

// Segment is a shared-memory region backed by a file descriptor that can be
// passed to another process.
type Segment struct {
	File     *os.File
	Data     []byte
	ReadOnly bool
}

// Create allocates an anonymous segment of size bytes mapped read-write
func Create(size int) (*Segment, error) {
	if size <= 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("segment size %d", size), "shm", "Create", "size check")
	}

	f, err := createBackingFile(size)
	if err != nil {
		return nil, errors.WrapFatal(err, "shm", "Create", "backing file creation")
	}

	seg, err := mapFile(f, size, false)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return seg, nil
}

// Map maps a received descriptor. The segment takes ownership of fd.
func Map(fd int, size int, readOnly bool) (*Segment, error) {
	if size <= 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("segment size %d", size), "shm", "Map", "size check")
	}

	f := os.NewFile(uintptr(fd), "vitalstream-ring")
	if f == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("bad descriptor %d", fd), "shm", "Map", "descriptor check")
	}

	seg, err := mapFile(f, size, readOnly)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return seg, nil
}

// FileSize returns the size of the object behind fd
func FileSize(fd int) (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return 0, errors.WrapTransient(err, "shm", "FileSize", "fstat")
	}
	return st.Size, nil
}

func mapFile(f *os.File, size int, readOnly bool) (*Segment, error) {
	prot := unix.PROT_READ
	if !readOnly {
		prot |= unix.PROT_WRITE
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.WrapFatal(err, "shm", "Map", fmt.Sprintf("mmap %d bytes", size))
	}

	return &Segment{File: f, Data: data, ReadOnly: readOnly}, nil
}

// Fd returns the descriptor to pass over the control channel
func (s *Segment) Fd() int {
	return int(s.File.Fd())
}

// Size returns the mapped length
func (s *Segment) Size() int {
	return len(s.Data)
}

// Close unmaps the region and closes the descriptor. Safe to call twice.
func (s *Segment) Close() error {
	var first error
	if s.Data != nil {
		if err := unix.Munmap(s.Data); err != nil {
			first = errors.WrapTransient(err, "shm", "Close", "munmap")
		}
		s.Data = nil
	}
	if s.File != nil {
		if err := s.File.Close(); err != nil && first == nil {
			first = errors.WrapTransient(err, "shm", "Close", "close descriptor")
		}
		s.File = nil
	}
	return first
}
