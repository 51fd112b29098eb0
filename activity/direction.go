package activity

import (
	"time"

	"github.com/ciotlosm/neary-sub003/transit"
)

const (
	// scheduleWindow is how many stops either side of the target a scheduled
	// time must fall within to support a high-confidence estimate.
	scheduleWindow = 3
	// staleSchedule is how far behind the clock a scheduled time may lag
	// before it stops counting as current evidence.
	staleSchedule = 30 * time.Minute
)

// StopVisit is one stop in a trip's ordered sequence. ScheduledArrival is
// zero when the schedule is unknown for that stop.
type StopVisit struct {
	StopID           string    `json:"stopId"`
	Sequence         int       `json:"sequence"`
	ScheduledArrival time.Time `json:"scheduledArrival,omitempty"`
}

// DirectionQuery describes one vehicle relative to a trip's stop sequence.
// CurrentStopSeq is the stop_sequence the vehicle reported last; negative
// means unknown. Now defaults to the analyzer clock when zero.
type DirectionQuery struct {
	TripStops      []StopVisit
	CurrentStopSeq int
	TargetStopID   string
	Now            time.Time
}

// InferDirection reports whether the vehicle is arriving at, stopped at, or
// departed from the target stop, graded by how much schedule evidence backs
// the answer. Malformed input yields {unknown, low} and a diagnostic log
// line; this function never fails.
func (a *Analyzer) InferDirection(q DirectionQuery) transit.DirectionEstimate {
	unknown := transit.DirectionEstimate{
		Direction:  transit.DirectionUnknown,
		Confidence: transit.ConfidenceLow,
	}
	if len(q.TripStops) == 0 {
		a.log.WithField("targetStop", q.TargetStopID).
			Debug("direction inference skipped, empty stop sequence")
		return unknown
	}
	if q.TargetStopID == "" {
		a.log.Debug("direction inference skipped, no target stop")
		return unknown
	}
	targetIdx := -1
	for i, s := range q.TripStops {
		if s.StopID == q.TargetStopID {
			targetIdx = i
			break
		}
	}
	if targetIdx == -1 {
		a.log.WithField("targetStop", q.TargetStopID).
			Debug("direction inference skipped, target stop not on trip")
		return unknown
	}
	if q.CurrentStopSeq < 0 {
		a.log.WithField("targetStop", q.TargetStopID).
			Debug("direction inference skipped, vehicle sequence unknown")
		return unknown
	}

	target := q.TripStops[targetIdx]
	var dir transit.Direction
	switch {
	case q.CurrentStopSeq < target.Sequence:
		dir = transit.DirectionArriving
	case q.CurrentStopSeq == target.Sequence:
		dir = transit.DirectionAtStop
	default:
		dir = transit.DirectionDeparted
	}
	return transit.DirectionEstimate{
		Direction:  dir,
		Confidence: a.scheduleConfidence(q, targetIdx),
	}
}

// scheduleConfidence grades the schedule evidence around the target stop.
// High needs at least one scheduled time within scheduleWindow stops of the
// target, monotonically ordered and not entirely stale. Schedule data that
// exists but fails those checks grades medium. No schedule data grades low.
func (a *Analyzer) scheduleConfidence(q DirectionQuery, targetIdx int) transit.Confidence {
	now := q.Now
	if now.IsZero() {
		now = a.now()
	}
	lo := targetIdx - scheduleWindow
	hi := targetIdx + scheduleWindow

	var window []time.Time
	anySchedule := false
	for i, s := range q.TripStops {
		if s.ScheduledArrival.IsZero() {
			continue
		}
		anySchedule = true
		if i >= lo && i <= hi {
			window = append(window, s.ScheduledArrival)
		}
	}
	if !anySchedule {
		return transit.ConfidenceLow
	}
	if len(window) == 0 {
		return transit.ConfidenceMedium
	}
	for j := 1; j < len(window); j++ {
		if window[j].Before(window[j-1]) {
			return transit.ConfidenceMedium
		}
	}
	stale := true
	for _, t := range window {
		if t.After(now.Add(-staleSchedule)) {
			stale = false
			break
		}
	}
	if stale {
		return transit.ConfidenceMedium
	}
	return transit.ConfidenceHigh
}
