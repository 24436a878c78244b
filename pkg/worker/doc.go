// Package worker provides a generic, bounded worker pool.
//
// Submit never blocks: a full queue returns ErrQueueFull so callers can record
// the loss instead of stalling. Statistics are always tracked atomically;
// Prometheus metrics are registered only when WithMetricsRegistry is given.
//
// A pool with a single worker processes items strictly in submission order,
// which the upload governor relies on.
//
// Shutdown has two phases:
//
//	if err := pool.Stop(timeout); errors.Is(err, worker.ErrStopTimeout) {
//	    cancel()           // the ctx passed to Start
//	    pool.Wait()
//	    for _, item := range pool.Drain() {
//	        // item was never processed
//	    }
//	}
//
// Stop closes the queue and lets workers finish what is already queued. When
// that takes longer than the timeout, cancelling the start context makes
// workers exit, and Drain hands back whatever they did not reach.
package worker
