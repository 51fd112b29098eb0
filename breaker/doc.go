// Package breaker implements the per-component circuit breakers that guard
// the data sources and performance-sensitive code paths feeding the display
// pipeline.
//
// Each monitored component gets one Breaker with the CLOSED, OPEN and
// HALF_OPEN states. Three consecutive failures open the circuit; while open,
// calls are rejected with an OpenError until the recovery timeout elapses,
// at which point a single trial call is let through. Three consecutive
// successes while closed forgive earlier isolated failures without a full
// open/close cycle. The Table owns all breakers for the process and creates
// them lazily by component name.
package breaker
