package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/crc32"

	"github.com/c360/vitalstream/errors"
)

// Ring header constants
const (
	Magic   uint32 = 0x534D5242
	Version uint16 = 1

	RingHeaderSize = 64

	// OffsetWriteIndex and OffsetHeartbeat are 8-byte aligned so they can be
	// accessed with sync/atomic through the mapping.
	OffsetWriteIndex = 16
	OffsetHeartbeat  = 24

	offsetMagic     = 0
	offsetVersion   = 4
	offsetSlotCount = 8
	offsetFrameSize = 12
	offsetHeaderCRC = 32
	headerCRCSpan   = 16
)

// Slot sizing defaults
const (
	DefaultSlotCount uint32 = 2048
	DefaultFrameSize uint32 = 512

	// MinFrameSize fits the header plus the largest payload
	MinFrameSize = FrameHeaderSize + WaveformPayloadSize
)

// Decoding errors
var (
	ErrBadMagic           = errors.New("ring header magic mismatch")
	ErrUnsupportedVersion = errors.New("unsupported ring header version")
	ErrTruncated          = errors.New("buffer shorter than layout")

	ErrChecksumFailed  = errors.ErrChecksumFailed
	ErrPayloadTooLarge = errors.ErrPayloadTooLarge
)

// RingHeader holds the static ring fields. writeIndex and heartbeat are
// dynamic and are read through shm, not through this struct.
type RingHeader struct {
	Magic     uint32
	Version   uint16
	SlotCount uint32
	FrameSize uint32
}

// NewRingHeader returns a version-1 header for the given geometry
func NewRingHeader(slotCount, frameSize uint32) RingHeader {
	return RingHeader{
		Magic:     Magic,
		Version:   Version,
		SlotCount: slotCount,
		FrameSize: frameSize,
	}
}

// Validate checks the ring geometry
func (h RingHeader) Validate() error {
	if h.SlotCount == 0 {
		return errors.WrapInvalid(fmt.Errorf("slot count must be positive"),
			"frame", "Validate", "ring geometry check")
	}
	if h.FrameSize < MinFrameSize {
		return errors.WrapInvalid(fmt.Errorf("frame size %d below minimum %d", h.FrameSize, MinFrameSize),
			"frame", "Validate", "ring geometry check")
	}
	return nil
}

// SegmentSize returns the bytes needed for the header and all slots
func (h RingHeader) SegmentSize() int {
	return SegmentSize(h.SlotCount, h.FrameSize)
}

// SlotOffset returns the byte offset of slot index i within the segment
func (h RingHeader) SlotOffset(i uint64) int {
	return RingHeaderSize + int(i%uint64(h.SlotCount))*int(h.FrameSize)
}

// SegmentSize returns the bytes needed for a ring of the given geometry
func SegmentSize(slotCount, frameSize uint32) int {
	return RingHeaderSize + int(slotCount)*int(frameSize)
}

// EncodeHeader writes the static header fields and the header CRC into dst.
// The writeIndex and heartbeat words are left untouched.
func EncodeHeader(dst []byte, h RingHeader) error {
	if len(dst) < RingHeaderSize {
		return errors.WrapInvalid(ErrTruncated, "frame", "EncodeHeader", "buffer size check")
	}

	le := binary.LittleEndian
	le.PutUint32(dst[offsetMagic:], h.Magic)
	le.PutUint16(dst[offsetVersion:], h.Version)
	le.PutUint16(dst[offsetVersion+2:], 0)
	le.PutUint32(dst[offsetSlotCount:], h.SlotCount)
	le.PutUint32(dst[offsetFrameSize:], h.FrameSize)
	le.PutUint32(dst[offsetHeaderCRC:], crc32.ChecksumIEEE(dst[:headerCRCSpan]))
	return nil
}

// DecodeHeader reads and verifies the static header fields
func DecodeHeader(src []byte) (RingHeader, error) {
	if len(src) < RingHeaderSize {
		return RingHeader{}, errors.WrapInvalid(ErrTruncated, "frame", "DecodeHeader", "buffer size check")
	}

	le := binary.LittleEndian
	h := RingHeader{
		Magic:     le.Uint32(src[offsetMagic:]),
		Version:   le.Uint16(src[offsetVersion:]),
		SlotCount: le.Uint32(src[offsetSlotCount:]),
		FrameSize: le.Uint32(src[offsetFrameSize:]),
	}

	if h.Magic != Magic {
		return RingHeader{}, errors.WrapInvalid(ErrBadMagic, "frame", "DecodeHeader",
			fmt.Sprintf("magic 0x%08X", h.Magic))
	}
	if h.Version != Version {
		return RingHeader{}, errors.WrapInvalid(ErrUnsupportedVersion, "frame", "DecodeHeader",
			fmt.Sprintf("version %d", h.Version))
	}
	if crc32.ChecksumIEEE(src[:headerCRCSpan]) != le.Uint32(src[offsetHeaderCRC:]) {
		return RingHeader{}, errors.WrapInvalid(ErrChecksumFailed, "frame", "DecodeHeader", "header CRC check")
	}

	return h, nil
}
