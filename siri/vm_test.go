package siri

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciotlosm/neary-sub003/geo"
	"github.com/ciotlosm/neary-sub003/stops"
	"github.com/ciotlosm/neary-sub003/transit"
)

func fixtureIndex(t *testing.T) *stops.Index {
	t.Helper()
	files := map[string]string{
		"stops.txt": "stop_id,stop_name,stop_lat,stop_lon\n" +
			"s1,Piata Unirii,46.77,23.60\n" +
			"s2,Gara,46.78,23.61\n",
		"trips.txt": "route_id,service_id,trip_id\nr1,weekday,t1\n",
		"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
			"t1,08:00:00,08:01:00,s1,1\n" +
			"t1,08:10:00,08:11:00,s2,2\n",
	}
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	x, err := stops.FromZipReader(zr, log)
	require.NoError(t, err)
	return x
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
}

func TestBuildRendersVehicleActivity(t *testing.T) {
	b := NewBuilder(fixtureIndex(t), "CTP", 15*time.Second, WithClock(fixedNow))
	vehicles := []transit.Vehicle{
		{
			ID:           "v1",
			RouteID:      "r1",
			Position:     geo.Coordinate{Latitude: 46.771, Longitude: 23.601},
			Timestamp:    fixedNow().Add(-5 * time.Second),
			TripID:       "t1",
			StopSequence: 1,
		},
	}

	resp := b.Build(vehicles)

	sd := resp.Siri.ServiceDelivery
	assert.Equal(t, "2026-03-14T12:00:00Z", sd.ResponseTimestamp)
	assert.Equal(t, "CTP", sd.ProducerRef)
	require.Len(t, sd.VehicleMonitoringDelivery, 1)

	vm := sd.VehicleMonitoringDelivery[0]
	assert.Equal(t, "2026-03-14T12:00:15Z", vm.ValidUntil)
	require.Len(t, vm.VehicleActivity, 1)

	entry := vm.VehicleActivity[0]
	assert.Equal(t, "2026-03-14T11:59:55Z", entry.RecordedAtTime)

	mvj := entry.MonitoredVehicleJourney
	assert.Equal(t, "CTP_r1", mvj.LineRef)
	assert.Equal(t, "CTP_v1", mvj.VehicleRef)
	assert.True(t, mvj.Monitored)
	assert.Equal(t, "CTP", mvj.DataSource)
	assert.InDelta(t, 46.771, mvj.VehicleLocation.Latitude, 1e-9)
	require.NotNil(t, mvj.FramedVehicleJourneyRef)
	assert.Equal(t, "2026-03-14", mvj.FramedVehicleJourneyRef.DataFrameRef)
	assert.Equal(t, "t1", mvj.FramedVehicleJourneyRef.DatedVehicleJourneyRef)
	assert.Equal(t, "s1", mvj.OriginRef)
	assert.Equal(t, "Piata Unirii", mvj.OriginName)
	assert.Equal(t, "s2", mvj.DestinationRef)
	assert.Equal(t, "Gara", mvj.DestinationName)
	require.NotNil(t, mvj.MonitoredCall)
	assert.Equal(t, "s1", mvj.MonitoredCall.StopPointRef)
	assert.Equal(t, "Piata Unirii", mvj.MonitoredCall.StopPointName)
	assert.False(t, mvj.IsCompleteStopSequence)
}

func TestBuildWithoutTrip(t *testing.T) {
	b := NewBuilder(fixtureIndex(t), "", 0, WithClock(fixedNow))
	vehicles := []transit.Vehicle{
		{
			ID:           "v2",
			RouteID:      "r1",
			Position:     geo.Coordinate{Latitude: 46.77, Longitude: 23.60},
			Timestamp:    fixedNow(),
			StopSequence: -1,
		},
	}

	resp := b.Build(vehicles)
	mvj := resp.Siri.ServiceDelivery.VehicleMonitoringDelivery[0].VehicleActivity[0].MonitoredVehicleJourney

	assert.Equal(t, "r1", mvj.LineRef, "no agency prefix when unset")
	assert.Equal(t, "v2", mvj.VehicleRef)
	assert.Nil(t, mvj.FramedVehicleJourneyRef)
	assert.Nil(t, mvj.MonitoredCall)
	assert.Empty(t, mvj.OriginRef)
}

func TestBuildEmptySnapshotKeepsArrays(t *testing.T) {
	b := NewBuilder(nil, "CTP", 15*time.Second, WithClock(fixedNow))

	resp := b.Build(nil)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"VehicleActivity":[]`)
	assert.Contains(t, string(raw), `"EstimatedTimetableDelivery":[]`)
}
