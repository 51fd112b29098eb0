package stops

import (
	"math"
	"time"

	"github.com/ciotlosm/neary-sub003/geo"
)

// Stop returns the stop with the given ID.
func (x *Index) Stop(id string) (Stop, bool) {
	s, ok := x.stops[id]
	return s, ok
}

// Nearest returns the stop closest to the given coordinate and the distance
// to it in meters. Stops without a valid position are skipped. ok is false
// when the coordinate is invalid or no stop qualifies.
func (x *Index) Nearest(coord geo.Coordinate) (Stop, float64, bool) {
	if !coord.Valid() {
		return Stop{}, 0, false
	}
	best := Stop{}
	bestDist := math.MaxFloat64
	found := false
	for _, s := range x.stops {
		d, err := geo.Distance(coord, s.Position)
		if err != nil {
			continue
		}
		if d < bestDist || (d == bestDist && found && s.ID < best.ID) {
			best = s
			bestDist = d
			found = true
		}
	}
	if !found {
		return Stop{}, 0, false
	}
	return best, bestDist, true
}

// TripSchedule returns the trip's stop sequence ordered by stop_sequence.
// The returned slice is shared; callers must not mutate it.
func (x *Index) TripSchedule(tripID string) []StopTime {
	return x.tripStops[tripID]
}

// RouteForTrip maps a trip to its route, empty when the trip is unknown.
func (x *Index) RouteForTrip(tripID string) string {
	return x.tripRoute[tripID]
}

// ScheduledArrival resolves the scheduled arrival at a stop of a trip to a
// wall-clock time on the given service day in the agency timezone.
func (x *Index) ScheduledArrival(tripID, stopID string, serviceDay time.Time) (time.Time, bool) {
	for _, st := range x.tripStops[tripID] {
		if st.StopID == stopID {
			if st.Arrival < 0 {
				return time.Time{}, false
			}
			return x.ResolveClock(st.Arrival, serviceDay), true
		}
	}
	return time.Time{}, false
}

// ResolveClock converts seconds past service midnight into a wall-clock
// time on the given service day in the agency timezone. Values past 24h
// roll into the next calendar day.
func (x *Index) ResolveClock(seconds int, serviceDay time.Time) time.Time {
	y, m, d := serviceDay.In(x.agencyTZ).Date()
	return time.Date(y, m, d, 0, 0, seconds, 0, x.agencyTZ)
}

// AgencyID returns the agency identifier from agency.txt, or the configured
// override captured at load time.
func (x *Index) AgencyID() string {
	return x.agencyID
}

// Timezone returns the agency timezone, UTC when the feed carried none.
func (x *Index) Timezone() *time.Location {
	return x.agencyTZ
}

// StopCount reports how many stops are indexed.
func (x *Index) StopCount() int {
	return len(x.stops)
}

// TripCount reports how many trips have schedules.
func (x *Index) TripCount() int {
	return len(x.tripStops)
}
