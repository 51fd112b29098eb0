// Package metrics exposes the pipeline's operational counters to
// Prometheus: classification and filtering latencies, circuit breaker
// transitions, degradation events and scrape-time cache statistics.
package metrics
