package transit

import (
	"time"

	"github.com/ciotlosm/neary-sub003/geo"
)

// Classification labels a route by how many vehicles currently serve it.
type Classification string

const (
	ClassificationBusy  Classification = "busy"
	ClassificationQuiet Classification = "quiet"
)

// Vehicle is one live vehicle position from the upstream feed after it has
// passed the parsing boundary. Position is always a valid WGS84 coordinate.
// StopSequence is the stop_sequence the vehicle last reported, -1 when the
// feed carried none.
type Vehicle struct {
	ID           string         `json:"id"`
	RouteID      string         `json:"routeId"`
	Position     geo.Coordinate `json:"position"`
	Timestamp    time.Time      `json:"timestamp"`
	TripID       string         `json:"tripId,omitempty"`
	StopSequence int            `json:"stopSequence"`
}

// RouteActivity is the derived busy/quiet record for one route. It is
// recomputed from each vehicle snapshot and never persisted.
type RouteActivity struct {
	RouteID        string         `json:"routeId"`
	VehicleCount   int            `json:"vehicleCount"`
	Classification Classification `json:"classification"`
	ComputedAt     time.Time      `json:"computedAt"`
}

// ActivityMap indexes RouteActivity by route ID.
type ActivityMap map[string]RouteActivity

// Clone returns an independent copy of the map.
func (m ActivityMap) Clone() ActivityMap {
	if m == nil {
		return nil
	}
	out := make(ActivityMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ConfigDelta names one filtering-config field change, carried on transition
// events so subscribers can tell a data-driven flip from a threshold change.
type ConfigDelta struct {
	Field    string `json:"field"`
	Previous string `json:"previous"`
	Current  string `json:"current"`
}

// RouteTransition records a route flipping between busy and quiet across two
// consecutive activity maps. Immutable once created.
type RouteTransition struct {
	ID                     string         `json:"id"`
	RouteID                string         `json:"routeId"`
	PreviousClassification Classification `json:"previousClassification"`
	NewClassification      Classification `json:"newClassification"`
	PreviousVehicleCount   int            `json:"previousVehicleCount"`
	NewVehicleCount        int            `json:"newVehicleCount"`
	Timestamp              time.Time      `json:"timestamp"`
	ConfigDelta            *ConfigDelta   `json:"configDelta,omitempty"`
}

// Direction is the inferred relation of a vehicle to a target stop.
type Direction string

const (
	DirectionArriving Direction = "arriving"
	DirectionAtStop   Direction = "at_stop"
	DirectionDeparted Direction = "departed"
	DirectionUnknown  Direction = "unknown"
)

// Confidence grades how much schedule evidence backed a direction estimate.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// DirectionEstimate is the never-failing result of direction inference.
type DirectionEstimate struct {
	Direction  Direction  `json:"direction"`
	Confidence Confidence `json:"confidence"`
}
