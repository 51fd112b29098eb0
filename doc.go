// Package neary assembles the transit display pipeline: a cache manager
// with stale-while-revalidate and pressure-driven eviction, route activity
// classification with busy-route distance filtering, circuit breakers per
// upstream component, and a degradation coordinator that picks a fallback
// whenever the live path fails.
//
// Core is the single entry point. It owns the subsystem wiring so callers
// see one facade: fetch vehicles, classify routes, filter the display set,
// subscribe to transitions, and export debug state.
package neary
