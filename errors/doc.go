// Package errors provides standardized error handling for VitalStream components.
//
// # Classification
//
// Every error belongs to one of three classes:
//
//   - Transient: handshake socket unreachable, upload timeout, circuit open (retry)
//   - Invalid: malformed frames, bad records, bad configuration (do not retry)
//   - Fatal: resource exhaustion, missing configuration (stop processing)
//
// Classification works through errors.Is and errors.As, so wrapped chains keep
// their class.
//
// # Wrapping
//
// All wrapping follows the format:
//
//	"component.method: action failed: %w"
//
// Use the class-aware helpers at component boundaries:
//
//	errors.WrapTransient(err, "controlchannel", "Dial", "connect")
//	errors.WrapInvalid(err, "Config", "Validate", "frame_size too small")
//	errors.WrapFatal(err, "shm", "Create", "memfd_create")
//
// # Sentinels
//
// Frame and ring errors (ErrChecksumFailed, ErrOverrun, ErrPayloadTooLarge)
// are self-healing inside the transport and only surface as counters. Handshake,
// upload and breaker errors (ErrHandshakeFailed, ErrUploadTimeout,
// ErrCircuitOpen, ErrBatchAbandoned) are the ones operators are told about.
package errors
