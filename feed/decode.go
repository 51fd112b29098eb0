package feed

import (
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/sirupsen/logrus"

	"github.com/ciotlosm/neary-sub003/transit"
)

// Arrivals holds expected arrival times keyed by trip then stop.
type Arrivals map[string]map[string]time.Time

// At returns the expected arrival of a trip at a stop.
func (a Arrivals) At(tripID, stopID string) (time.Time, bool) {
	stops, ok := a[tripID]
	if !ok {
		return time.Time{}, false
	}
	t, ok := stops[stopID]
	return t, ok
}

// DecodeVehicles converts VehiclePosition entities into validated vehicles.
// resolve, when non-nil, fills a missing route ID from the trip ID. Returns
// the accepted vehicles and how many entities were dropped.
func DecodeVehicles(fm *gtfsrtpb.FeedMessage, resolve RouteResolver, now time.Time, log *logrus.Logger) ([]transit.Vehicle, int) {
	if fm == nil {
		return nil, 0
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	var (
		vehicles []transit.Vehicle
		skipped  int
	)
	for _, e := range fm.Entity {
		vp := e.GetVehicle()
		if vp == nil {
			continue
		}
		raw := rawFromEntity(e, vp, resolve)
		v, err := transit.ParseVehicle(raw, now)
		if err != nil {
			skipped++
			log.WithField("entity", e.GetId()).WithError(err).Debug("skipping vehicle entity")
			continue
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, skipped
}

func rawFromEntity(e *gtfsrtpb.FeedEntity, vp *gtfsrtpb.VehiclePosition, resolve RouteResolver) transit.RawVehicle {
	raw := transit.RawVehicle{
		ID:      vp.GetVehicle().GetId(),
		RouteID: vp.GetTrip().GetRouteId(),
		TripID:  vp.GetTrip().GetTripId(),
	}
	if raw.ID == "" {
		raw.ID = e.GetId()
	}
	if raw.RouteID == "" && resolve != nil && raw.TripID != "" {
		raw.RouteID = resolve(raw.TripID)
	}
	if pos := vp.GetPosition(); pos != nil {
		if pos.Latitude != nil {
			lat := float64(pos.GetLatitude())
			raw.Latitude = &lat
		}
		if pos.Longitude != nil {
			lon := float64(pos.GetLongitude())
			raw.Longitude = &lon
		}
	}
	if vp.Timestamp != nil {
		raw.Timestamp = int64(vp.GetTimestamp())
	}
	if vp.CurrentStopSequence != nil {
		seq := int64(vp.GetCurrentStopSequence())
		raw.StopSequence = &seq
	}
	return raw
}

// DecodeArrivals extracts expected arrival epochs from TripUpdate entities.
// Stop time updates without an arrival time are skipped; a departure time
// does not substitute.
func DecodeArrivals(fm *gtfsrtpb.FeedMessage) Arrivals {
	out := Arrivals{}
	if fm == nil {
		return out
	}
	for _, e := range fm.Entity {
		tu := e.GetTripUpdate()
		if tu == nil {
			continue
		}
		tripID := tu.GetTrip().GetTripId()
		if tripID == "" {
			continue
		}
		for _, stu := range tu.GetStopTimeUpdate() {
			stopID := stu.GetStopId()
			if stopID == "" || stu.GetArrival() == nil || stu.GetArrival().Time == nil {
				continue
			}
			if out[tripID] == nil {
				out[tripID] = map[string]time.Time{}
			}
			out[tripID][stopID] = time.Unix(stu.GetArrival().GetTime(), 0).UTC()
		}
	}
	return out
}
