// Package batch provides the compiler that turns a stream of records into
// sealed, gzip-compressed NDJSON batches.
//
// Records are appended as one JSON document per line. A batch is sealed when
// the flush interval elapses, when the buffered bytes reach MaxBatchBytes,
// on an explicit Flush, and once more on Stop if anything is buffered.
//
// Sealing swaps the buffer out under the enqueue mutex and compresses outside
// it, so producers of records are never held up by compression. A second
// mutex serializes seals so batches reach the Submitter in creation order.
//
// When Deps.Events is set the compiler also consumes sensor events and
// converts them to telemetry records itself; on Stop it drains whatever is
// still queued on that channel before the final flush.
package batch
