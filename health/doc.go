// Package health aggregates per-component health into a system status.
//
// Components report component.HealthStatus; FromComponentHealth converts it
// into a Status, sanitizing error text so socket paths, upload URLs and keys
// never reach the endpoint. Monitor stores the latest Status per component and
// Watch refreshes them on an interval. Handler exposes the aggregate as JSON:
//
//	monitor := health.NewMonitor()
//	go monitor.Watch(ctx, time.Second, reader, compiler, governor)
//	mux.Handle("/health", health.Handler(monitor, "vitalstream"))
//
// Aggregation: any unhealthy component makes the system unhealthy (HTTP 503);
// otherwise any degraded component makes it degraded (HTTP 200).
package health
