package activity

import (
	"sort"

	"github.com/ciotlosm/neary-sub003/transit"
)

// DetectTransitions compares two consecutive activity maps and returns one
// transition per route whose classification flipped. Routes present in only
// one of the maps are ignored; appearing or disappearing is not a transition.
// Results are ordered by route ID. The delta, when non-nil, is attached to
// every transition as the configuration change that triggered recalculation.
func (a *Analyzer) DetectTransitions(previous, current transit.ActivityMap, delta *transit.ConfigDelta) []transit.RouteTransition {
	if len(previous) == 0 || len(current) == 0 {
		return nil
	}
	ids := make([]string, 0, len(current))
	for id := range current {
		if _, ok := previous[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	at := a.now()
	var out []transit.RouteTransition
	for _, id := range ids {
		prev := previous[id]
		cur := current[id]
		if prev.Classification == cur.Classification {
			continue
		}
		out = append(out, transit.RouteTransition{
			ID:                     a.newID(),
			RouteID:                id,
			PreviousClassification: prev.Classification,
			NewClassification:      cur.Classification,
			PreviousVehicleCount:   prev.VehicleCount,
			NewVehicleCount:        cur.VehicleCount,
			Timestamp:              at,
			ConfigDelta:            delta,
		})
	}
	return out
}
