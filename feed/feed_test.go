package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/ciotlosm/neary-sub003/config"
)

const feedEpoch = int64(1755770400)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func vehicleEntity(entityID string, mutate func(*gtfsrtpb.VehiclePosition)) *gtfsrtpb.FeedEntity {
	vp := &gtfsrtpb.VehiclePosition{
		Trip: &gtfsrtpb.TripDescriptor{
			TripId:  proto.String("t1"),
			RouteId: proto.String("r1"),
		},
		Vehicle: &gtfsrtpb.VehicleDescriptor{Id: proto.String("v-" + entityID)},
		Position: &gtfsrtpb.Position{
			Latitude:  proto.Float32(46.77),
			Longitude: proto.Float32(23.60),
		},
		CurrentStopSequence: proto.Uint32(4),
		Timestamp:           proto.Uint64(uint64(feedEpoch)),
	}
	if mutate != nil {
		mutate(vp)
	}
	return &gtfsrtpb.FeedEntity{Id: proto.String(entityID), Vehicle: vp}
}

func makeFeed(entities ...*gtfsrtpb.FeedEntity) *gtfsrtpb.FeedMessage {
	return &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(uint64(feedEpoch)),
		},
		Entity: entities,
	}
}

func TestDecodeVehiclesMapsFields(t *testing.T) {
	fm := makeFeed(vehicleEntity("e1", nil))

	vehicles, skipped := DecodeVehicles(fm, nil, time.Now(), quietLogger())

	require.Len(t, vehicles, 1)
	assert.Zero(t, skipped)
	v := vehicles[0]
	assert.Equal(t, "v-e1", v.ID)
	assert.Equal(t, "r1", v.RouteID)
	assert.Equal(t, "t1", v.TripID)
	assert.InDelta(t, 46.77, v.Position.Latitude, 1e-4)
	assert.InDelta(t, 23.60, v.Position.Longitude, 1e-4)
	assert.Equal(t, 4, v.StopSequence)
	assert.Equal(t, feedEpoch, v.Timestamp.Unix())
}

func TestDecodeVehiclesSkipsInvalidEntities(t *testing.T) {
	fm := makeFeed(
		vehicleEntity("ok", nil),
		vehicleEntity("no-position", func(vp *gtfsrtpb.VehiclePosition) { vp.Position = nil }),
		vehicleEntity("bad-latitude", func(vp *gtfsrtpb.VehiclePosition) {
			vp.Position.Latitude = proto.Float32(95.0)
		}),
	)

	vehicles, skipped := DecodeVehicles(fm, nil, time.Now(), quietLogger())

	require.Len(t, vehicles, 1)
	assert.Equal(t, "v-ok", vehicles[0].ID)
	assert.Equal(t, 2, skipped)
}

func TestDecodeVehiclesFallsBackToEntityID(t *testing.T) {
	fm := makeFeed(vehicleEntity("e7", func(vp *gtfsrtpb.VehiclePosition) { vp.Vehicle = nil }))

	vehicles, skipped := DecodeVehicles(fm, nil, time.Now(), quietLogger())

	require.Len(t, vehicles, 1)
	assert.Zero(t, skipped)
	assert.Equal(t, "e7", vehicles[0].ID)
}

func TestDecodeVehiclesResolvesRouteFromTrip(t *testing.T) {
	withoutRoute := func(vp *gtfsrtpb.VehiclePosition) { vp.Trip.RouteId = nil }

	vehicles, skipped := DecodeVehicles(
		makeFeed(vehicleEntity("e1", withoutRoute)),
		func(tripID string) string {
			assert.Equal(t, "t1", tripID)
			return "r5"
		},
		time.Now(), quietLogger(),
	)
	require.Len(t, vehicles, 1)
	assert.Zero(t, skipped)
	assert.Equal(t, "r5", vehicles[0].RouteID)

	vehicles, skipped = DecodeVehicles(makeFeed(vehicleEntity("e1", withoutRoute)), nil, time.Now(), quietLogger())
	assert.Empty(t, vehicles, "no resolver leaves the route unknown")
	assert.Equal(t, 1, skipped)
}

func TestDecodeVehiclesIgnoresNonVehicleEntities(t *testing.T) {
	fm := makeFeed(&gtfsrtpb.FeedEntity{
		Id: proto.String("tu1"),
		TripUpdate: &gtfsrtpb.TripUpdate{
			Trip: &gtfsrtpb.TripDescriptor{TripId: proto.String("t1")},
		},
	})

	vehicles, skipped := DecodeVehicles(fm, nil, time.Now(), quietLogger())

	assert.Empty(t, vehicles)
	assert.Zero(t, skipped, "trip updates are not invalid vehicles")
}

func TestDecodeArrivals(t *testing.T) {
	fm := makeFeed(&gtfsrtpb.FeedEntity{
		Id: proto.String("tu1"),
		TripUpdate: &gtfsrtpb.TripUpdate{
			Trip: &gtfsrtpb.TripDescriptor{TripId: proto.String("t1")},
			StopTimeUpdate: []*gtfsrtpb.TripUpdate_StopTimeUpdate{
				{
					StopId:  proto.String("s1"),
					Arrival: &gtfsrtpb.TripUpdate_StopTimeEvent{Time: proto.Int64(feedEpoch + 120)},
				},
				{
					StopId:    proto.String("s2"),
					Departure: &gtfsrtpb.TripUpdate_StopTimeEvent{Time: proto.Int64(feedEpoch + 300)},
				},
			},
		},
	})

	arrivals := DecodeArrivals(fm)

	at, ok := arrivals.At("t1", "s1")
	require.True(t, ok)
	assert.Equal(t, feedEpoch+120, at.Unix())

	_, ok = arrivals.At("t1", "s2")
	assert.False(t, ok, "departure-only updates carry no arrival")

	_, ok = arrivals.At("t9", "s1")
	assert.False(t, ok)
}

func TestFetchVehiclesFromServer(t *testing.T) {
	body, err := proto.Marshal(makeFeed(vehicleEntity("e1", nil)))
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	c := New(config.GTFSRTConfig{VehiclePositionsURL: srv.URL, TimeoutMS: 2000}, quietLogger())

	vehicles, err := c.FetchVehicles(context.Background())
	require.NoError(t, err)
	require.Len(t, vehicles, 1)
	assert.Equal(t, "v-e1", vehicles[0].ID)
}

func TestFetchVehiclesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(config.GTFSRTConfig{VehiclePositionsURL: srv.URL}, quietLogger())

	_, err := c.FetchVehicles(context.Background())
	assert.Error(t, err)
}

func TestFetchVehiclesGarbageBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("\xff\xfe not a protobuf"))
	}))
	defer srv.Close()

	c := New(config.GTFSRTConfig{VehiclePositionsURL: srv.URL}, quietLogger())

	_, err := c.FetchVehicles(context.Background())
	assert.Error(t, err)
}

func TestFetchVehiclesWithoutURL(t *testing.T) {
	c := New(config.GTFSRTConfig{}, quietLogger())

	_, err := c.FetchVehicles(context.Background())
	assert.Error(t, err)
}

func TestFetchArrivalsFromServer(t *testing.T) {
	fm := makeFeed(&gtfsrtpb.FeedEntity{
		Id: proto.String("tu1"),
		TripUpdate: &gtfsrtpb.TripUpdate{
			Trip: &gtfsrtpb.TripDescriptor{TripId: proto.String("t1")},
			StopTimeUpdate: []*gtfsrtpb.TripUpdate_StopTimeUpdate{
				{
					StopId:  proto.String("s1"),
					Arrival: &gtfsrtpb.TripUpdate_StopTimeEvent{Time: proto.Int64(feedEpoch + 60)},
				},
			},
		},
	})
	body, err := proto.Marshal(fm)
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	c := New(config.GTFSRTConfig{TripUpdatesURL: srv.URL}, quietLogger())

	arrivals, err := c.FetchArrivals(context.Background())
	require.NoError(t, err)
	_, ok := arrivals.At("t1", "s1")
	assert.True(t, ok)
}
