// Package retry provides exponential backoff for transient failures.
//
// A Config describes a schedule: attempt 1 runs immediately and attempt n>=2
// waits InitialDelay * Multiplier^(n-2), capped by MaxDelay. The upload
// governor uses Delay and Wait directly so it can interleave circuit breaker
// decisions between attempts. The control channel uses Do for its handshake.
//
// Presets:
//
//   - DefaultConfig(): 3 attempts, 1s initial delay, x2 (uploads)
//   - Quick(): 10 attempts, 50ms-1s with jitter (local handshakes)
//
// Usage:
//
//	err := retry.Do(ctx, retry.Quick(), func() error {
//	    return dialControlSocket()
//	})
//
// Errors wrapped with NonRetryable stop the loop immediately.
package retry
