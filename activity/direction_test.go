package activity

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ciotlosm/neary-sub003/transit"
)

// tripStops builds a linear sequence s1..sN with sequences 1..N and no
// schedule data.
func tripStops(n int) []StopVisit {
	out := make([]StopVisit, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, StopVisit{StopID: stopID(i), Sequence: i})
	}
	return out
}

func stopID(i int) string {
	return fmt.Sprintf("s%d", i)
}

func TestInferDirectionSequenceOnly(t *testing.T) {
	clk := newFakeClock()
	a := newTestAnalyzer(t, clk)
	stops := tripStops(7)

	tests := []struct {
		name    string
		current int
		want    transit.Direction
	}{
		{"before target", 2, transit.DirectionArriving},
		{"at target", 4, transit.DirectionAtStop},
		{"past target", 6, transit.DirectionDeparted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.InferDirection(DirectionQuery{
				TripStops:      stops,
				CurrentStopSeq: tt.current,
				TargetStopID:   stopID(4),
			})
			assert.Equal(t, tt.want, got.Direction)
			assert.Equal(t, transit.ConfidenceLow, got.Confidence, "no schedule data grades low")
		})
	}
}

func TestInferDirectionHighConfidenceWithScheduleNearTarget(t *testing.T) {
	clk := newFakeClock()
	a := newTestAnalyzer(t, clk)
	now := clk.Now()
	stops := tripStops(7)
	stops[3].ScheduledArrival = now.Add(5 * time.Minute)
	stops[4].ScheduledArrival = now.Add(8 * time.Minute)

	got := a.InferDirection(DirectionQuery{
		TripStops:      stops,
		CurrentStopSeq: 2,
		TargetStopID:   stopID(4),
		Now:            now,
	})

	assert.Equal(t, transit.DirectionArriving, got.Direction)
	assert.Equal(t, transit.ConfidenceHigh, got.Confidence)
}

func TestInferDirectionMediumWhenScheduleOutsideWindow(t *testing.T) {
	clk := newFakeClock()
	a := newTestAnalyzer(t, clk)
	now := clk.Now()
	stops := tripStops(10)
	stops[0].ScheduledArrival = now.Add(time.Minute)

	got := a.InferDirection(DirectionQuery{
		TripStops:      stops,
		CurrentStopSeq: 5,
		TargetStopID:   stopID(9),
		Now:            now,
	})

	assert.Equal(t, transit.DirectionArriving, got.Direction)
	assert.Equal(t, transit.ConfidenceMedium, got.Confidence)
}

func TestInferDirectionMediumWhenScheduleInconsistent(t *testing.T) {
	clk := newFakeClock()
	a := newTestAnalyzer(t, clk)
	now := clk.Now()
	stops := tripStops(7)
	stops[2].ScheduledArrival = now.Add(10 * time.Minute)
	stops[4].ScheduledArrival = now.Add(2 * time.Minute)

	got := a.InferDirection(DirectionQuery{
		TripStops:      stops,
		CurrentStopSeq: 2,
		TargetStopID:   stopID(4),
		Now:            now,
	})

	assert.Equal(t, transit.ConfidenceMedium, got.Confidence)
}

func TestInferDirectionMediumWhenScheduleStale(t *testing.T) {
	clk := newFakeClock()
	a := newTestAnalyzer(t, clk)
	now := clk.Now()
	stops := tripStops(7)
	stops[3].ScheduledArrival = now.Add(-2 * time.Hour)

	got := a.InferDirection(DirectionQuery{
		TripStops:      stops,
		CurrentStopSeq: 6,
		TargetStopID:   stopID(4),
		Now:            now,
	})

	assert.Equal(t, transit.DirectionDeparted, got.Direction)
	assert.Equal(t, transit.ConfidenceMedium, got.Confidence)
}

func TestInferDirectionMalformedInput(t *testing.T) {
	clk := newFakeClock()
	a := newTestAnalyzer(t, clk)
	unknown := transit.DirectionEstimate{
		Direction:  transit.DirectionUnknown,
		Confidence: transit.ConfidenceLow,
	}

	tests := []struct {
		name  string
		query DirectionQuery
	}{
		{"empty sequence", DirectionQuery{TargetStopID: "s4", CurrentStopSeq: 1}},
		{"missing target id", DirectionQuery{TripStops: tripStops(7), CurrentStopSeq: 1}},
		{"target not on trip", DirectionQuery{TripStops: tripStops(7), TargetStopID: "elsewhere", CurrentStopSeq: 1}},
		{"vehicle sequence unknown", DirectionQuery{TripStops: tripStops(7), TargetStopID: "s4", CurrentStopSeq: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, unknown, a.InferDirection(tt.query))
		})
	}
}
