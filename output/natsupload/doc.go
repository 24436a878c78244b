// Package natsupload publishes sealed batches to a NATS JetStream subject.
//
// Each batch is one message. The body is the compressed payload unchanged and
// the headers carry the metadata:
//
//	Nats-Msg-Id        batch id, so the stream drops redelivered batches
//	Content-Encoding   gzip
//	Content-Type       application/x-ndjson
//	X-Batch-ID         batch id
//	X-Device-ID        device id
//
// An upload succeeds when JetStream returns a PubAck. A duplicate ack also
// counts as success since the stream already holds the batch.
package natsupload
