// Package component provides the lifecycle contract for the data-plane stages:
// the sensor reader, the batch compiler and the upload governor.
//
// Every stage implements LifecycleComponent:
//
//	Initialize() error                // validate config, no goroutines
//	Start(ctx context.Context) error  // idempotent; ctx bounds the stage's lifetime
//	Stop(timeout time.Duration) error // idempotent; waits for goroutines to exit
//
// and Discoverable (Meta, Health, DataFlow) so the daemon can publish health
// without knowing concrete types.
//
// Components receive their runtime services through a Deps struct built from
// Dependencies. A nil logger falls back to slog.Default() tagged with the
// component name; a nil metrics registry disables Prometheus metrics while the
// atomic counters behind Health and DataFlow keep working.
//
// Group starts stages in the order they were added and stops them in reverse,
// which gives the daemon its shutdown sequence (reader, then compiler, then
// governor) by adding them as governor, compiler, reader.
package component
