// Package degrade decides how the display pipeline falls back when a data
// source or code path fails, and keeps the in-memory history of every
// fallback decision.
//
// A failure type plus severity selects exactly one strategy from a fixed
// table: serve the last cached value, serve safe defaults, disable
// busy-route filtering, or enter emergency mode. Each decision is recorded
// as an immutable Event; the system-wide degradation level is the maximum
// level across recorded events until the history is cleared.
package degrade
