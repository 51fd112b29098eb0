package activity

import (
	"math"

	"github.com/ciotlosm/neary-sub003/config"
	"github.com/ciotlosm/neary-sub003/geo"
	"github.com/ciotlosm/neary-sub003/transit"
)

// Filter returns the display subset of vehicles. Vehicles on quiet or
// unclassified routes always pass. Vehicles on busy routes pass only when
// within cfg.DistanceFilterThreshold meters of reference. Input order is
// preserved and the input slice is never mutated.
//
// An invalid reference point disables distance filtering for the whole call;
// a vehicle whose own position cannot be measured passes through. Both cases
// log a diagnostic instead of failing.
func (a *Analyzer) Filter(vehicles []transit.Vehicle, activity transit.ActivityMap, reference geo.Coordinate, cfg config.FilterConfig) []transit.Vehicle {
	if len(vehicles) == 0 {
		return nil
	}
	maxDist := cfg.DistanceFilterThreshold
	if math.IsNaN(maxDist) || math.IsInf(maxDist, 0) || maxDist <= 0 {
		a.log.WithField("distanceFilterThreshold", cfg.DistanceFilterThreshold).
			Warn("invalid distance filter threshold, using default")
		maxDist = config.DefaultDistanceFilterThreshold
	}
	refValid := reference.Valid()
	if !refValid {
		a.log.WithFields(map[string]any{
			"latitude":  reference.Latitude,
			"longitude": reference.Longitude,
		}).Warn("invalid reference point, distance filtering disabled")
	}

	out := make([]transit.Vehicle, 0, len(vehicles))
	for _, v := range vehicles {
		act, classified := activity[v.RouteID]
		if !refValid || !classified || act.Classification != transit.ClassificationBusy {
			out = append(out, v)
			continue
		}
		d, err := geo.Distance(reference, v.Position)
		if err != nil {
			if cfg.EnableDebugLogging {
				a.log.WithField("vehicle", v.ID).WithError(err).
					Debug("vehicle position unmeasurable, keeping")
			}
			out = append(out, v)
			continue
		}
		if d <= maxDist {
			out = append(out, v)
		} else if cfg.EnableDebugLogging {
			a.log.WithFields(map[string]any{
				"vehicle":  v.ID,
				"route":    v.RouteID,
				"distance": d,
				"limit":    maxDist,
			}).Debug("vehicle outside distance threshold on busy route")
		}
	}
	return out
}
