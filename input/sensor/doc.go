// Package sensor provides the input component that consumes sensor frames
// from the shared-memory ring published by the producer process.
//
// # Lifecycle
//
// Start performs the control-channel handshake within StartupTimeout, maps
// the segment read-only and starts a poll loop on PollInterval. Each poll
// surfaces new frames and checks the producer heartbeat. Stop halts the loop,
// waits for it to exit and only then unmaps the segment.
//
// Supervisor wraps a Reader for long-running use: when the producer is not up
// at Start the reader stays disconnected and the handshake is retried in the
// background on the Reconnect schedule.
//
// # Events
//
// Decoded frames and connection state changes are sent to the channel given
// in Deps.Events. Sends never block; when the channel is full the event is
// dropped and counted as sink_dropped.
//
// # State
//
//	disconnected  no handshake yet, handshake failed, or stopped
//	connected     handshake done and heartbeat fresh
//	stalled       handshake done but heartbeat older than HeartbeatTimeout
//
// Stalled is reported as degraded, not unhealthy: the producer may recover
// and the reader resumes without a new handshake.
//
// # Metrics
//
// With a metrics registry the reader exports, under vitalstream_sensor_*:
// frames_total{type}, corrupted_frames_total, overruns_total,
// missed_frames_total, sink_dropped_total, decode_errors_total, state and
// heartbeat_age_seconds.
package sensor
