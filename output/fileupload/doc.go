// Package fileupload writes sealed batches to a local directory.
//
// Each batch becomes two files:
//
//	<dir>/<prefix>-<id>.ndjson.gz   compressed payload, byte-for-byte
//	<dir>/<prefix>-<id>.json        batch metadata
//
// Both are written to a temporary file and renamed into place, so readers
// never observe a partial batch. The uploader serves as the dead-letter spool
// for abandoned batches and as an offline capture transport. Pending and Load
// recover spooled batches for replay.
package fileupload
