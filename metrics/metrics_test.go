package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciotlosm/neary-sub003/cache"
)

func TestSet_RecordsWithoutPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewSetWithRegisterer(reg)

	s.ObserveClassify(2 * time.Millisecond)
	s.ObserveFilter(500 * time.Microsecond)
	s.RecordBreakerTransition("vehicles-api", "OPEN")
	s.RecordDegradation("MODERATE", "USE_CACHE")
	s.RecordTransitions(3)
	s.SetVehiclesDisplayed(42)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["neary_pipeline_classify_duration_seconds"])
	assert.True(t, names["neary_breaker_transitions_total"])
	assert.True(t, names["neary_degrade_events_total"])
	assert.True(t, names["neary_pipeline_vehicles_displayed"])
}

func TestSet_DoubleRegistrationTolerated(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := NewSetWithRegisterer(reg)
	b := NewSetWithRegisterer(reg)

	a.RecordTransitions(1)
	b.RecordTransitions(1)

	families, err := reg.Gather()
	require.NoError(t, err)

	for _, f := range families {
		if f.GetName() == "neary_pipeline_route_transitions_total" {
			require.Len(t, f.GetMetric(), 1)
			assert.Equal(t, 2.0, f.GetMetric()[0].GetCounter().GetValue(),
				"both sets should feed the same underlying counter")
		}
	}
}

func TestCacheCollector_ExportsStats(t *testing.T) {
	stats := cache.Stats{
		Entries:   3,
		SizeBytes: 192,
		Prefixes: map[string]cache.PrefixStats{
			"vehicles": {Entries: 2, SizeBytes: 128},
			"stops":    {Entries: 1, SizeBytes: 64},
		},
		Counters: cache.Counters{Hits: 10, Misses: 4, StaleServes: 2},
	}

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewCacheCollector(func() cache.Stats { return stats })))

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]float64)
	prefixCount := 0
	for _, f := range families {
		switch f.GetName() {
		case "neary_cache_entries":
			byName["entries"] = f.GetMetric()[0].GetGauge().GetValue()
		case "neary_cache_hits_total":
			byName["hits"] = f.GetMetric()[0].GetCounter().GetValue()
		case "neary_cache_prefix_entries":
			prefixCount = len(f.GetMetric())
		}
	}
	assert.Equal(t, 3.0, byName["entries"])
	assert.Equal(t, 10.0, byName["hits"])
	assert.Equal(t, 2, prefixCount, "one series per prefix")
}
