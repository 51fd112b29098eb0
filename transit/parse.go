package transit

import (
	"fmt"
	"time"

	"github.com/ciotlosm/neary-sub003/geo"
)

// ValidationError describes one rejected upstream record. It never escapes
// past the parsing boundary into the calculation layers.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "transit: " + e.Msg
	}
	return fmt.Sprintf("transit: %s: %s", e.Field, e.Msg)
}

// RawVehicle is the loosely shaped upstream record before validation.
// Pointer fields distinguish "absent" from zero values.
type RawVehicle struct {
	ID           string   `json:"id"`
	RouteID      string   `json:"routeId"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	Timestamp    int64    `json:"timestamp"`
	TripID       string   `json:"tripId,omitempty"`
	StopSequence *int64   `json:"stopSequence,omitempty"`
}

// ParseVehicle converts one raw record into a Vehicle or reports why it is
// unusable. A zero timestamp is backfilled with now so a missing upstream
// clock does not reject the position.
func ParseVehicle(raw RawVehicle, now time.Time) (Vehicle, error) {
	if raw.ID == "" {
		return Vehicle{}, &ValidationError{Field: "id", Msg: "missing vehicle id"}
	}
	if raw.RouteID == "" {
		return Vehicle{}, &ValidationError{Field: "routeId", Msg: "missing route id for vehicle " + raw.ID}
	}
	if raw.Latitude == nil || raw.Longitude == nil {
		return Vehicle{}, &ValidationError{Field: "position", Msg: "missing coordinates for vehicle " + raw.ID}
	}
	pos := geo.Coordinate{Latitude: *raw.Latitude, Longitude: *raw.Longitude}
	if !pos.Valid() {
		return Vehicle{}, &ValidationError{
			Field: "position",
			Msg:   fmt.Sprintf("coordinates out of range for vehicle %s: lat=%v lon=%v", raw.ID, *raw.Latitude, *raw.Longitude),
		}
	}
	ts := now
	if raw.Timestamp > 0 {
		ts = time.Unix(raw.Timestamp, 0).UTC()
	}
	seq := -1
	if raw.StopSequence != nil && *raw.StopSequence >= 0 {
		seq = int(*raw.StopSequence)
	}
	return Vehicle{
		ID:           raw.ID,
		RouteID:      raw.RouteID,
		Position:     pos,
		Timestamp:    ts,
		TripID:       raw.TripID,
		StopSequence: seq,
	}, nil
}

// ParseVehicles runs every raw record through ParseVehicle, keeping the valid
// ones and collecting an error per rejected record. The returned slice order
// follows the input order of accepted records.
func ParseVehicles(raws []RawVehicle, now time.Time) ([]Vehicle, []error) {
	vehicles := make([]Vehicle, 0, len(raws))
	var errs []error
	for _, raw := range raws {
		v, err := ParseVehicle(raw, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, errs
}
