// Package shm implements the single-producer single-consumer ring that
// carries sensor frames across a shared-memory segment.
//
// The segment starts with the 64-byte ring header from package frame,
// followed by slotCount fixed-size slots. The producer serializes a frame
// into slot writeIndex mod slotCount and only then increments writeIndex.
// The consumer keeps a private cursor, copies each slot before verifying it,
// and re-reads writeIndex after the copy so a slot overwritten mid-copy is
// discarded as an overrun instead of surfaced.
//
// writeIndex and the heartbeat word are accessed with sync/atomic through
// the mapping. Both sit on 8-byte boundaries of a page-aligned region.
//
// Segment creation is the only platform-specific part: Linux uses
// memfd_create, other unix systems an unlinked file in /dev/shm.
package shm
