package controlchannel

import (
	"encoding/binary"
	"fmt"

	"github.com/c360/vitalstream/errors"
)

// MessageSize is the fixed size of a control message
const MessageSize = 16

// MessageType identifies a control message
type MessageType uint8

// Control message types
const (
	MessageHandshake MessageType = 0x01
	MessageHeartbeat MessageType = 0x02
	MessageShutdown  MessageType = 0x03
)

// String returns the message type name
func (t MessageType) String() string {
	switch t {
	case MessageHandshake:
		return "handshake"
	case MessageHeartbeat:
		return "heartbeat"
	case MessageShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(t))
	}
}

// Message is the payload sent alongside the descriptor
type Message struct {
	Type     MessageType
	Version  uint16
	RingSize uint64
}

// MarshalBinary implements encoding.BinaryMarshaler
func (m Message) MarshalBinary() ([]byte, error) {
	b := make([]byte, MessageSize)
	b[0] = byte(m.Type)
	binary.LittleEndian.PutUint16(b[2:], m.Version)
	binary.LittleEndian.PutUint64(b[8:], m.RingSize)
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler
func (m *Message) UnmarshalBinary(data []byte) error {
	if len(data) != MessageSize {
		return errors.WrapInvalid(
			fmt.Errorf("%w: message is %d bytes, want %d", ErrHandshakeFailed, len(data), MessageSize),
			"Message", "UnmarshalBinary", "length check")
	}
	m.Type = MessageType(data[0])
	m.Version = binary.LittleEndian.Uint16(data[2:])
	m.RingSize = binary.LittleEndian.Uint64(data[8:])
	return nil
}
