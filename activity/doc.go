// Package activity classifies routes as busy or quiet from live vehicle
// snapshots, filters the displayed vehicle set by distance on busy routes,
// detects classification transitions between consecutive snapshots, and
// infers whether a vehicle is arriving at or has departed a target stop.
//
// Every operation in this package is synchronous and fail-safe: malformed
// input produces the documented default and a diagnostic log line, never an
// error. Classification results are memoized through the cache manager so
// repeated calls on an unchanged snapshot do not recompute.
package activity
