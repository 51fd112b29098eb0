// Package stops indexes the static GTFS feed: stop names and coordinates,
// per-trip ordered stop sequences, and scheduled arrival and departure
// times. The index is built once from a GTFS zip (local file or URL) and is
// read-only afterwards, so lookups need no locking.
//
// It supplies the two static inputs the analysis pipeline needs: the
// viewer's reference stop (Nearest) and the trip schedules that back
// direction inference.
package stops
