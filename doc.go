// Package vitalstream is a telemetry data plane for bedside monitors.
//
// A producer process (the monitor, or cmd/sensorsim in development) writes
// fixed-size frames into a shared-memory ring and hands the segment's file
// descriptor to the daemon over a Unix control socket. The daemon
// (cmd/vitalstream) maps the ring read-only, decodes vitals and waveform
// frames, compiles them into compressed NDJSON batches and uploads each batch
// through a retrying, circuit-broken governor.
//
// # Architecture
//
//	producer                      vitalstream
//	+--------------+  fd over   +--------------------+
//	| shm.Writer   |----------->| input/sensor       |  poll, liveness
//	| heartbeat    |  control   |   | events         |
//	+--------------+  channel   | processor/batch    |  NDJSON + gzip
//	       ^                    |   | batches        |
//	       |  ring (read-only)  | output/governor    |  retry, breaker
//	       +--------------------|   |                |
//	                            | http | file | nats |
//	                            +--------------------+
//
// # Packages
//
//   - frame: ring header and frame wire layout, payload codecs, checksums
//   - shm: segment allocation, the single-producer writer and the lock-free reader
//   - controlchannel: SCM_RIGHTS handshake server and client
//   - input/sensor: reader component emitting decoded frames and state changes
//   - processor/batch: batch compiler sealing records on interval or size
//   - output/governor: bounded upload queue with backoff and a circuit breaker
//   - output/httpupload, output/fileupload, output/natsupload: transport adapters
//   - config: layered JSON/YAML configuration with environment overrides
//   - component, health, metric: lifecycle, health aggregation and Prometheus metrics
//
// The producer never blocks on the consumer. A slow consumer loses frames and
// observes the loss as an overrun; it never sees a torn frame.
package vitalstream
