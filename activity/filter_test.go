package activity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciotlosm/neary-sub003/geo"
	"github.com/ciotlosm/neary-sub003/transit"
)

// Reference point and offsets used across the filter tests. At this
// latitude a 0.0134898 degree move along the meridian is roughly 1500m and
// 0.0224830 degrees is roughly 2500m.
var (
	testReference = geo.Coordinate{Latitude: 46.77, Longitude: 23.60}
	lat1500m      = 46.77 + 0.0134898
	lat2500m      = 46.77 + 0.0224830
)

func vehicleIDs(vehicles []transit.Vehicle) []string {
	out := make([]string, 0, len(vehicles))
	for _, v := range vehicles {
		out = append(out, v.ID)
	}
	return out
}

func TestFilterQuietRoutePassesAll(t *testing.T) {
	clk := newFakeClock()
	a := newTestAnalyzer(t, clk)
	vehicles := []transit.Vehicle{
		vehicle("v1", "r1", 46.77, 23.60),
		vehicle("v2", "r1", lat2500m, 23.60),
	}
	activity := Classify(vehicles, 5, clk.Now())
	require.Equal(t, transit.ClassificationQuiet, activity["r1"].Classification)

	kept := a.Filter(vehicles, activity, testReference, testFilterConfig())

	assert.Equal(t, []string{"v1", "v2"}, vehicleIDs(kept))
}

func TestFilterBusyRouteDropsDistantVehicles(t *testing.T) {
	clk := newFakeClock()
	a := newTestAnalyzer(t, clk)
	vehicles := append(fleet("r1", 4, 46.77, 23.60),
		vehicle("r1-near", "r1", lat1500m, 23.60),
		vehicle("r1-far", "r1", lat2500m, 23.60),
	)
	activity := Classify(vehicles, 5, clk.Now())
	require.Equal(t, transit.ClassificationBusy, activity["r1"].Classification)

	kept := a.Filter(vehicles, activity, testReference, testFilterConfig())

	ids := vehicleIDs(kept)
	assert.Contains(t, ids, "r1-near")
	assert.NotContains(t, ids, "r1-far")
	assert.Len(t, kept, 5)
}

func TestFilterPreservesInputOrderAndSubset(t *testing.T) {
	clk := newFakeClock()
	a := newTestAnalyzer(t, clk)
	vehicles := append(fleet("r1", 5, 46.77, 23.60),
		vehicle("r1-far", "r1", lat2500m, 23.60),
		vehicle("r2-solo", "r2", lat2500m, 23.60),
	)
	activity := Classify(vehicles, 5, clk.Now())

	kept := a.Filter(vehicles, activity, testReference, testFilterConfig())

	inputIdx := make(map[string]int, len(vehicles))
	for i, v := range vehicles {
		inputIdx[v.ID] = i
	}
	last := -1
	for _, v := range kept {
		idx, ok := inputIdx[v.ID]
		require.Truef(t, ok, "vehicle %s not in input snapshot", v.ID)
		assert.Greater(t, idx, last, "input order not preserved")
		last = idx
	}
}

func TestFilterUnclassifiedRoutePasses(t *testing.T) {
	clk := newFakeClock()
	a := newTestAnalyzer(t, clk)
	vehicles := []transit.Vehicle{vehicle("v1", "r9", lat2500m, 23.60)}

	kept := a.Filter(vehicles, transit.ActivityMap{}, testReference, testFilterConfig())

	assert.Len(t, kept, 1)
}

func TestFilterInvalidReferenceDisablesFiltering(t *testing.T) {
	clk := newFakeClock()
	a := newTestAnalyzer(t, clk)
	vehicles := append(fleet("r1", 5, 46.77, 23.60), vehicle("r1-far", "r1", lat2500m, 23.60))
	activity := Classify(vehicles, 5, clk.Now())

	kept := a.Filter(vehicles, activity, geo.Coordinate{Latitude: 91, Longitude: 23.60}, testFilterConfig())

	assert.Len(t, kept, len(vehicles))
}

func TestFilterInvalidVehiclePositionPasses(t *testing.T) {
	clk := newFakeClock()
	a := newTestAnalyzer(t, clk)
	vehicles := append(fleet("r1", 5, 46.77, 23.60), vehicle("r1-bad", "r1", math.NaN(), 23.60))
	activity := Classify(vehicles, 5, clk.Now())

	kept := a.Filter(vehicles, activity, testReference, testFilterConfig())

	assert.Contains(t, vehicleIDs(kept), "r1-bad")
}

func TestFilterInvalidThresholdFallsBackToDefault(t *testing.T) {
	clk := newFakeClock()
	a := newTestAnalyzer(t, clk)
	vehicles := append(fleet("r1", 5, 46.77, 23.60), vehicle("r1-far", "r1", lat2500m, 23.60))
	activity := Classify(vehicles, 5, clk.Now())

	cfg := testFilterConfig()
	cfg.DistanceFilterThreshold = math.NaN()
	kept := a.Filter(vehicles, activity, testReference, cfg)

	assert.NotContains(t, vehicleIDs(kept), "r1-far", "default 2000m threshold still applies")
	assert.Len(t, kept, 5)
}

func TestFilterEmptyInput(t *testing.T) {
	clk := newFakeClock()
	a := newTestAnalyzer(t, clk)

	assert.Nil(t, a.Filter(nil, transit.ActivityMap{}, testReference, testFilterConfig()))
}

// The documented end-to-end scenario: five vehicles at the reference point
// make the route busy at threshold 5, and a sixth roughly 2500m away is
// dropped from the display set while the original five remain.
func TestFilterEndToEndScenario(t *testing.T) {
	clk := newFakeClock()
	a := newTestAnalyzer(t, clk)
	vehicles := append(fleet("r1", 5, 46.77, 23.60), vehicle("v6", "r1", lat2500m, 23.60))

	activity := a.Analyze(vehicles, testFilterConfig())
	require.Equal(t, transit.ClassificationBusy, activity["r1"].Classification)
	require.Equal(t, 6, activity["r1"].VehicleCount)

	far, err := geo.Distance(testReference, vehicles[5].Position)
	require.NoError(t, err)
	require.Greater(t, far, 2000.0)

	kept := a.Filter(vehicles, activity, testReference, testFilterConfig())

	assert.Len(t, kept, 5)
	assert.NotContains(t, vehicleIDs(kept), "v6")
}
