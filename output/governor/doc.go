// Package governor uploads sealed batches one at a time, retrying with
// exponential backoff behind a circuit breaker shared by all batches.
//
// # Batch lifecycle
//
//	Pending -> Uploading -> Succeeded
//	                     -> Failed -> Pending    (attempts left, breaker closed)
//	                               -> Abandoned  (attempts exhausted or breaker opened)
//	Pending -> Rejected                          (breaker open, no network call)
//
// Attempt n >= 2 waits InitialDelay * Multiplier^(n-2) first. The wait runs on
// the governor's single worker, never on the submitting goroutine, so Submit
// only enqueues. A full queue abandons the batch immediately.
//
// # Outcomes
//
// Every terminal state is published as an Outcome on the optional outcome
// channel (non-blocking), logged and counted. Abandoned and rejected batches
// are handed to the optional dead-letter uploader so nothing disappears
// silently.
//
// # Shutdown
//
// Stop lets the worker drain the queue. If the timeout expires first, pending
// delays and the in-flight upload are cancelled and every batch still queued
// is abandoned with ErrShuttingDown.
package governor
