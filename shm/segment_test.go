//go:build unix

package shm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/c360/vitalstream/frame"
)

func TestCreate_SizeAndClose(t *testing.T) {
	size := frame.SegmentSize(8, frame.DefaultFrameSize)
	seg, err := Create(size)
	require.NoError(t, err)

	assert.Equal(t, size, seg.Size())
	assert.GreaterOrEqual(t, seg.Fd(), 0)

	got, err := FileSize(seg.Fd())
	require.NoError(t, err)
	assert.Equal(t, int64(size), got)

	require.NoError(t, seg.Close())
	assert.NoError(t, seg.Close(), "second close is a no-op")
}

func TestCreate_RejectsNonPositiveSize(t *testing.T) {
	_, err := Create(0)
	assert.Error(t, err)
}

func TestMap_SharesMemoryWithCreator(t *testing.T) {
	size := frame.SegmentSize(8, frame.MinFrameSize)
	seg, err := Create(size)
	require.NoError(t, err)
	defer seg.Close()

	w, err := NewWriter(seg.Data, 8, frame.MinFrameSize)
	require.NoError(t, err)

	fd, err := unix.Dup(seg.Fd())
	require.NoError(t, err)

	view, err := Map(fd, size, true)
	require.NoError(t, err)
	defer view.Close()
	assert.True(t, view.ReadOnly)

	r, err := NewReader(view.Data, ReaderConfig{})
	require.NoError(t, err)
	assert.Equal(t, uint32(8), r.Header().SlotCount)

	_, err = w.WriteVitals(1, vitals(65))
	require.NoError(t, err)

	frames := collect(r)
	require.Len(t, frames, 1)
	assert.Equal(t, frame.TypeVitals, frames[0].Type)
}

func TestMap_RejectsBadArguments(t *testing.T) {
	_, err := Map(-1, 4096, true)
	assert.Error(t, err)

	_, err = Map(0, 0, true)
	assert.Error(t, err)
}
