// Package controlchannel hands the ring segment from producer to consumer.
//
// The producer listens on a unix stream socket. Every accepted connection
// receives one 16-byte message with the segment descriptor attached as
// SCM_RIGHTS ancillary data, after which the connection is closed:
//
//	0  type     u8   (0x01 handshake, 0x03 shutdown)
//	1  reserved u8
//	2  version  u16  ring layout version
//	4  fd slot  u32  unused on the wire, the descriptor travels out of band
//	8  ringSize u64  total segment size in bytes
//
// The consumer validates the message, checks the announced size and the
// fstat size of the received descriptor, maps it read-only and validates the
// ring header. Any failure discards the descriptor and retries the whole
// exchange with backoff.
package controlchannel
