// Package telemetry holds the types exchanged between the batch compiler, the
// upload governor and the transport adapters.
package telemetry

import (
	"time"
)

// Encoding values for Batch.Encoding
const (
	EncodingGzip = "gzip"
)

// ContentType of the uncompressed batch body: one JSON record per line
const ContentType = "application/x-ndjson"

// Batch is a sealed, compressed group of records ready for upload.
// Payload is immutable once sealed.
type Batch struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	CreatedAt time.Time `json:"created_at"`
	Records   int       `json:"records"`
	RawBytes  int       `json:"raw_bytes"`
	Encoding  string    `json:"encoding"`
	Payload   []byte    `json:"-"`
}

// Size returns the compressed payload length
func (b Batch) Size() int {
	return len(b.Payload)
}
