// Package feed fetches GTFS-Realtime protobuf feeds and converts them into
// validated domain snapshots. VehiclePositions become []transit.Vehicle
// through the transit parsing boundary; TripUpdates become expected-arrival
// lookups for direction confidence. Invalid entities are counted and
// logged, never fatal: one bad record must not take down the refresh.
//
// The Client is the pipeline's only asynchronous boundary. It is used as
// the cache manager's fetcher and is therefore the call the circuit breaker
// guards.
package feed
