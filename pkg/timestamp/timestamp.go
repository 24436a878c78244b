// Package timestamp handles the millisecond wall-clock values carried in frame
// headers, the ring heartbeat and telemetry records.
//
// Milliseconds since the Unix epoch (UTC) are the canonical form. Zero means
// "not set": a producer that has never written a heartbeat, or a frame without
// a timestamp.
//
//	ts := timestamp.Now()
//	t := timestamp.FromUnixMs(ts)
//	s := timestamp.Format(ts) // RFC3339 with milliseconds
package timestamp

import (
	"fmt"
	"time"
)

// maxMs is 3000-01-01T00:00:00Z
const maxMs = 32503680000000

// Now returns the current time as Unix milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}

// NowUint64 returns the current time as unsigned Unix milliseconds, the wire
// form of frame and heartbeat timestamps.
func NowUint64() uint64 {
	return uint64(time.Now().UnixMilli())
}

// ToUnixMs converts a time.Time to Unix milliseconds.
func ToUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMs converts Unix milliseconds to time.Time.
// Returns zero time if timestamp is 0.
func FromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// FromWire converts an unsigned wire timestamp to time.Time
func FromWire(ms uint64) time.Time {
	if ms > maxMs {
		return time.Time{}
	}
	return FromUnixMs(int64(ms))
}

// Format converts Unix milliseconds to an RFC3339 string with millisecond
// precision. Returns empty string if timestamp is 0.
func Format(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// IsZero checks if a timestamp is unset (zero).
func IsZero(ms int64) bool {
	return ms == 0
}

// Since returns the duration since the given timestamp.
// Returns 0 if timestamp is zero.
func Since(ms int64) time.Duration {
	if ms == 0 {
		return 0
	}
	return time.Since(time.UnixMilli(ms))
}

// Between returns the duration between two timestamps.
// Returns 0 if either timestamp is zero.
func Between(start, end int64) time.Duration {
	if start == 0 || end == 0 {
		return 0
	}
	return time.UnixMilli(end).Sub(time.UnixMilli(start))
}

// Validate checks that a timestamp is non-negative and before year 3000.
func Validate(ms int64) error {
	if ms < 0 {
		return fmt.Errorf("timestamp cannot be negative: %d", ms)
	}
	if ms > maxMs {
		return fmt.Errorf("timestamp too far in future: %d", ms)
	}
	return nil
}
