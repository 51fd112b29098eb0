package siri

import (
	"time"

	transittypes "github.com/theoremus-urban-solutions/transit-types/siri"

	"github.com/ciotlosm/neary-sub003/stops"
	"github.com/ciotlosm/neary-sub003/transit"
)

// Builder assembles SIRI-VM responses from vehicle snapshots. The stop
// index enriches journeys with origin, destination, and call names; a nil
// index produces position-only entries.
type Builder struct {
	index    *stops.Index
	agency   string
	validity time.Duration
	now      func() time.Time
}

// Option adjusts a Builder.
type Option func(*Builder)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// NewBuilder creates a Builder. validity bounds how long a response stays
// usable, usually the feed read interval.
func NewBuilder(index *stops.Index, agency string, validity time.Duration, opts ...Option) *Builder {
	b := &Builder{
		index:    index,
		agency:   agency,
		validity: validity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build renders the display set as a complete SIRI response.
func (b *Builder) Build(vehicles []transit.Vehicle) *SiriResponse {
	at := b.now()
	ts := iso8601(at)
	vm := VehicleMonitoring{
		ResponseTimestamp: ts,
		VehicleActivity:   make([]VehicleActivityEntry, 0, len(vehicles)),
	}
	validUntil := ""
	if b.validity > 0 {
		validUntil = iso8601(at.Add(b.validity))
		vm.ValidUntil = validUntil
	}
	for _, v := range vehicles {
		vm.VehicleActivity = append(vm.VehicleActivity, VehicleActivityEntry{
			RecordedAtTime:          iso8601(v.Timestamp),
			ValidUntilTime:          validUntil,
			MonitoredVehicleJourney: b.buildJourney(v, at),
		})
	}
	return &SiriResponse{Siri: SiriServiceDelivery{ServiceDelivery: ServiceDelivery{
		ResponseTimestamp:          ts,
		ProducerRef:                b.agency,
		VehicleMonitoringDelivery:  []VehicleMonitoring{vm},
		EstimatedTimetableDelivery: []transittypes.EstimatedTimetableDelivery{},
	}}}
}

func (b *Builder) buildJourney(v transit.Vehicle, at time.Time) MonitoredVehicleJourney {
	mvj := MonitoredVehicleJourney{
		LineRef:    prefixed(b.agency, v.RouteID),
		Monitored:  true,
		DataSource: b.agency,
		VehicleLocation: VehicleLocation{
			Latitude:  v.Position.Latitude,
			Longitude: v.Position.Longitude,
		},
		VehicleRef: prefixed(b.agency, v.ID),
	}
	if v.TripID != "" {
		mvj.FramedVehicleJourneyRef = &transittypes.FramedVehicleJourneyRef{
			DataFrameRef:           at.UTC().Format("2006-01-02"),
			DatedVehicleJourneyRef: v.TripID,
		}
	}
	if b.index == nil || v.TripID == "" {
		return mvj
	}
	sched := b.index.TripSchedule(v.TripID)
	if len(sched) > 0 {
		mvj.OriginRef = sched[0].StopID
		mvj.DestinationRef = sched[len(sched)-1].StopID
		if s, ok := b.index.Stop(mvj.OriginRef); ok {
			mvj.OriginName = s.Name
		}
		if s, ok := b.index.Stop(mvj.DestinationRef); ok {
			mvj.DestinationName = s.Name
		}
	}
	if v.StopSequence >= 0 {
		for _, st := range sched {
			if st.Sequence != v.StopSequence {
				continue
			}
			order := st.Sequence
			call := &MonitoredCall{StopPointRef: st.StopID, Order: &order}
			if s, ok := b.index.Stop(st.StopID); ok {
				call.StopPointName = s.Name
			}
			mvj.MonitoredCall = call
			break
		}
	}
	return mvj
}

func prefixed(agency, ref string) string {
	if agency == "" || ref == "" {
		return ref
	}
	return agency + "_" + ref
}

func iso8601(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
