// Package httpupload posts sealed telemetry batches to an HTTPS collector.
//
// Each batch is sent as one request:
//
//	POST <url>
//	Content-Type:     application/x-ndjson
//	Content-Encoding: gzip
//	X-Batch-ID:       <batch id>
//	X-Device-ID:      <device id>
//	Authorization:    Bearer <token>   (only when a signing key is configured)
//
// The optional token is an HS256 JWT carrying the batch id, device id, the
// SHA-256 of the compressed body and a nonce, so the collector can reject
// tampered or replayed uploads.
//
// The uploader makes exactly one attempt per call. Retry and circuit breaking
// belong to the upload governor, which retries every failure while attempts
// remain. Non-2xx responses surface as *StatusError; Temporary reports whether
// the status is one a collector returns under load.
package httpupload
