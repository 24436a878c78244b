package frame

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/c360/vitalstream/errors"
)

// Payload sizes
const (
	VitalsPayloadSize   = 24
	WaveformPayloadSize = 280
	WaveformSamples     = 64
)

// Channel identifies a waveform source
type Channel uint16

// Waveform channels
const (
	ChannelECG   Channel = 0
	ChannelPleth Channel = 1
	ChannelResp  Channel = 2
)

// String returns the channel name
func (c Channel) String() string {
	switch c {
	case ChannelECG:
		return "ecg"
	case ChannelPleth:
		return "pleth"
	case ChannelResp:
		return "resp"
	default:
		return fmt.Sprintf("channel(%d)", uint16(c))
	}
}

// VitalsPayload carries one vitals sample
//
//	0  heartRate f32
//	4  spo2      f32
//	8  respRate  f32
//	12 reserved  4 bytes
//	16 sampleTs  i64 ms
type VitalsPayload struct {
	HeartRate       float32
	SpO2            float32
	RespRate        float32
	SampleTimestamp int64
}

// AppendBinary appends the 24-byte encoding to b
func (p VitalsPayload) AppendBinary(b []byte) ([]byte, error) {
	le := binary.LittleEndian
	b = le.AppendUint32(b, math.Float32bits(p.HeartRate))
	b = le.AppendUint32(b, math.Float32bits(p.SpO2))
	b = le.AppendUint32(b, math.Float32bits(p.RespRate))
	b = le.AppendUint32(b, 0)
	b = le.AppendUint64(b, uint64(p.SampleTimestamp))
	return b, nil
}

// MarshalBinary implements encoding.BinaryMarshaler
func (p VitalsPayload) MarshalBinary() ([]byte, error) {
	return p.AppendBinary(make([]byte, 0, VitalsPayloadSize))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler
func (p *VitalsPayload) UnmarshalBinary(data []byte) error {
	if len(data) != VitalsPayloadSize {
		return errors.WrapInvalid(errors.ErrInvalidData, "VitalsPayload", "UnmarshalBinary",
			fmt.Sprintf("length %d, want %d", len(data), VitalsPayloadSize))
	}

	le := binary.LittleEndian
	p.HeartRate = math.Float32frombits(le.Uint32(data[0:]))
	p.SpO2 = math.Float32frombits(le.Uint32(data[4:]))
	p.RespRate = math.Float32frombits(le.Uint32(data[8:]))
	p.SampleTimestamp = int64(le.Uint64(data[16:]))
	return nil
}

// WaveformPayload carries a block of up to 64 samples from one channel
//
//	0  channel    u16
//	2  reserved   u16
//	4  sampleRate u32 Hz
//	8  startTs    i64 ms
//	16 count      u32 valid samples
//	20 reserved   u32
//	24 samples    [64]f32
type WaveformPayload struct {
	Channel        Channel
	SampleRate     uint32
	StartTimestamp int64
	Count          uint32
	Samples        [WaveformSamples]float32
}

// Valid returns the populated prefix of Samples
func (p *WaveformPayload) Valid() []float32 {
	n := p.Count
	if n > WaveformSamples {
		n = WaveformSamples
	}
	return p.Samples[:n]
}

// AppendBinary appends the 280-byte encoding to b
func (p *WaveformPayload) AppendBinary(b []byte) ([]byte, error) {
	if p.Count > WaveformSamples {
		return b, errors.WrapInvalid(errors.ErrInvalidData, "WaveformPayload", "AppendBinary",
			fmt.Sprintf("count %d exceeds %d", p.Count, WaveformSamples))
	}

	le := binary.LittleEndian
	b = le.AppendUint16(b, uint16(p.Channel))
	b = le.AppendUint16(b, 0)
	b = le.AppendUint32(b, p.SampleRate)
	b = le.AppendUint64(b, uint64(p.StartTimestamp))
	b = le.AppendUint32(b, p.Count)
	b = le.AppendUint32(b, 0)
	for _, s := range p.Samples {
		b = le.AppendUint32(b, math.Float32bits(s))
	}
	return b, nil
}

// MarshalBinary implements encoding.BinaryMarshaler
func (p *WaveformPayload) MarshalBinary() ([]byte, error) {
	return p.AppendBinary(make([]byte, 0, WaveformPayloadSize))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler
func (p *WaveformPayload) UnmarshalBinary(data []byte) error {
	if len(data) != WaveformPayloadSize {
		return errors.WrapInvalid(errors.ErrInvalidData, "WaveformPayload", "UnmarshalBinary",
			fmt.Sprintf("length %d, want %d", len(data), WaveformPayloadSize))
	}

	le := binary.LittleEndian
	count := le.Uint32(data[16:])
	if count > WaveformSamples {
		return errors.WrapInvalid(errors.ErrInvalidData, "WaveformPayload", "UnmarshalBinary",
			fmt.Sprintf("count %d exceeds %d", count, WaveformSamples))
	}

	p.Channel = Channel(le.Uint16(data[0:]))
	p.SampleRate = le.Uint32(data[4:])
	p.StartTimestamp = int64(le.Uint64(data[8:]))
	p.Count = count
	for i := range p.Samples {
		p.Samples[i] = math.Float32frombits(le.Uint32(data[24+4*i:]))
	}
	return nil
}
