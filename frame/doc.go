// Package frame defines the binary layout shared by the sensor producer and
// the consumer daemon: a 64-byte ring header at the start of the segment,
// followed by slotCount fixed-size slots each holding one frame.
//
// All multi-byte integers are little-endian. Checksums are CRC-32 IEEE.
//
// Ring header:
//
//	0   magic      u32  0x534D5242 ("SMRB")
//	4   version    u16  1
//	8   slotCount  u32
//	12  frameSize  u32
//	16  writeIndex u64  advanced atomically by the producer only
//	24  heartbeat  u64  wall-clock ms, stored atomically by the producer
//	32  headerCRC  u32  over bytes [0,16)
//
// Frame slot:
//
//	0   type        u8   Vitals=1 Waveform=2 Heartbeat=3
//	4   payloadSize u32
//	8   timestamp   u64  ms since epoch
//	16  sequence    u64  producer-local counter
//	24  checksum    u32  over header bytes [0,24) then the payload
//	32  payload
//
// The codec never allocates on the hot path: payloads are appended into
// caller-provided buffers and decoded frames alias the source slice.
package frame
