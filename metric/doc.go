// Package metric provides the Prometheus registry and HTTP endpoint shared by
// every data-plane component.
//
// The registry carries two kinds of metrics:
//
//  1. Core metrics (Metrics type), registered at construction: service status,
//     error counts, producer liveness and the upload circuit breaker state.
//  2. Component metrics, registered through MetricsRegistrar under a
//     "service.metric" key. Registering the same key twice is an invalid error.
//
// Components follow the nil-registry convention: when no registry is supplied
// they skip metric creation entirely and keep only their atomic counters.
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry, security.Config{},
//	    metric.WithHealthHandler(health.Handler(monitor, "vitalstream")))
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        logger.Error("metrics server failed", "error", err)
//	    }
//	}()
//	defer server.Stop()
//
// Start blocks until Stop is called and returns nil on a clean close.
package metric
