package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/crc32"

	"github.com/c360/vitalstream/errors"
)

// FrameHeaderSize is the fixed header at the start of every slot
const FrameHeaderSize = 32

const (
	offType        = 0
	offPayloadSize = 4
	offTimestamp   = 8
	offSequence    = 16
	offChecksum    = 24
	checksumSpan   = 24
)

// Type identifies the payload carried by a frame
type Type uint8

// Frame types
const (
	TypeVitals    Type = 0x01
	TypeWaveform  Type = 0x02
	TypeHeartbeat Type = 0x03
)

// String returns the frame type name
func (t Type) String() string {
	switch t {
	case TypeVitals:
		return "vitals"
	case TypeWaveform:
		return "waveform"
	case TypeHeartbeat:
		return "heartbeat"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(t))
	}
}

// Frame is one decoded slot. Payload aliases the buffer it was decoded from.
type Frame struct {
	Type      Type
	Timestamp uint64
	Sequence  uint64
	Payload   []byte
}

// Checksum computes CRC-32 IEEE over the first 24 header bytes, then the payload
func Checksum(header, payload []byte) uint32 {
	crc := crc32.Update(0, crc32.IEEETable, header[:checksumSpan])
	return crc32.Update(crc, crc32.IEEETable, payload)
}

// EncodeFrame serializes f into dst and returns the bytes written.
// dst is normally one slot; a payload that does not fit is rejected.
func EncodeFrame(dst []byte, f Frame) (int, error) {
	n := FrameHeaderSize + len(f.Payload)
	if n > len(dst) {
		return 0, errors.WrapInvalid(ErrPayloadTooLarge, "frame", "EncodeFrame",
			fmt.Sprintf("payload %d bytes into %d byte slot", len(f.Payload), len(dst)))
	}

	le := binary.LittleEndian
	dst[offType] = byte(f.Type)
	dst[1], dst[2], dst[3] = 0, 0, 0
	le.PutUint32(dst[offPayloadSize:], uint32(len(f.Payload)))
	le.PutUint64(dst[offTimestamp:], f.Timestamp)
	le.PutUint64(dst[offSequence:], f.Sequence)
	copy(dst[FrameHeaderSize:], f.Payload)
	le.PutUint32(dst[offChecksum:], Checksum(dst[:FrameHeaderSize], dst[FrameHeaderSize:n]))
	le.PutUint32(dst[offChecksum+4:], 0)

	return n, nil
}

// DecodeFrame parses a slot and verifies its checksum before exposing the payload
func DecodeFrame(src []byte) (Frame, error) {
	if len(src) < FrameHeaderSize {
		return Frame{}, errors.WrapInvalid(ErrTruncated, "frame", "DecodeFrame", "header size check")
	}

	le := binary.LittleEndian
	size := le.Uint32(src[offPayloadSize:])
	if uint64(size) > uint64(len(src)-FrameHeaderSize) {
		return Frame{}, errors.WrapInvalid(errors.ErrDataCorrupted, "frame", "DecodeFrame",
			fmt.Sprintf("payload size %d exceeds slot", size))
	}

	payload := src[FrameHeaderSize : FrameHeaderSize+int(size)]
	if Checksum(src[:FrameHeaderSize], payload) != le.Uint32(src[offChecksum:]) {
		return Frame{}, errors.WrapInvalid(ErrChecksumFailed, "frame", "DecodeFrame", "frame checksum check")
	}

	return Frame{
		Type:      Type(src[offType]),
		Timestamp: le.Uint64(src[offTimestamp:]),
		Sequence:  le.Uint64(src[offSequence:]),
		Payload:   payload,
	}, nil
}
