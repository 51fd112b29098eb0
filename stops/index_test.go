package stops

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciotlosm/neary-sub003/config"
	"github.com/ciotlosm/neary-sub003/geo"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func fixtureFiles() map[string]string {
	return map[string]string{
		"agency.txt": "agency_id,agency_name,agency_timezone\n" +
			"2,Compania de Transport,Europe/Bucharest\n",
		"stops.txt": "stop_id,stop_name,stop_lat,stop_lon\n" +
			"s1,Piata Unirii,46.77,23.60\n" +
			"s2,Memorandumului,46.7834898,23.60\n" +
			"s3,Depou,,\n",
		"trips.txt": "route_id,service_id,trip_id\n" +
			"r1,weekday,t1\n",
		"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
			"t1,25:10:00,25:11:00,s2,3\n" +
			"t1,08:00:00,08:01:00,s1,1\n" +
			"t1,,,s3,2\n",
	}
}

func fixtureIndex(t *testing.T) *Index {
	t.Helper()
	raw := buildZip(t, fixtureFiles())
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	x, err := FromZipReader(zr, quietLogger())
	require.NoError(t, err)
	return x
}

func TestFromZipReaderIndexesFeed(t *testing.T) {
	x := fixtureIndex(t)

	assert.Equal(t, 3, x.StopCount())
	assert.Equal(t, 1, x.TripCount())
	assert.Equal(t, "2", x.AgencyID())
	assert.Equal(t, "Europe/Bucharest", x.Timezone().String())

	s, ok := x.Stop("s1")
	require.True(t, ok)
	assert.Equal(t, "Piata Unirii", s.Name)
	assert.InDelta(t, 46.77, s.Position.Latitude, 1e-9)
}

func TestTripScheduleOrderedBySequence(t *testing.T) {
	x := fixtureIndex(t)

	sched := x.TripSchedule("t1")

	require.Len(t, sched, 3)
	assert.Equal(t, []string{"s1", "s3", "s2"}, []string{sched[0].StopID, sched[1].StopID, sched[2].StopID})
	assert.Equal(t, 8*3600, sched[0].Arrival)
	assert.Equal(t, -1, sched[1].Arrival, "missing time stays unknown")
	assert.Equal(t, 25*3600+10*60, sched[2].Arrival)
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"08:00:00", 28800},
		{"25:10:00", 90600},
		{"00:00:00", 0},
		{"", -1},
		{"8:00", -1},
		{"aa:bb:cc", -1},
		{"08:61:00", -1},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, parseClock(tt.in), "parseClock(%q)", tt.in)
	}
}

func TestNearest(t *testing.T) {
	x := fixtureIndex(t)

	s, dist, ok := x.Nearest(geo.Coordinate{Latitude: 46.771, Longitude: 23.60})
	require.True(t, ok)
	assert.Equal(t, "s1", s.ID)
	assert.Less(t, dist, 200.0)

	_, _, ok = x.Nearest(geo.Coordinate{Latitude: 91, Longitude: 0})
	assert.False(t, ok, "invalid query coordinate")
}

func TestNearestSkipsStopsWithoutPosition(t *testing.T) {
	raw := buildZip(t, map[string]string{
		"stops.txt": "stop_id,stop_name,stop_lat,stop_lon\ns3,Depou,,\n",
	})
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	x, err := FromZipReader(zr, quietLogger())
	require.NoError(t, err)

	_, _, ok := x.Nearest(geo.Coordinate{Latitude: 46.77, Longitude: 23.60})
	assert.False(t, ok)
}

func TestScheduledArrival(t *testing.T) {
	x := fixtureIndex(t)
	loc := x.Timezone()
	serviceDay := time.Date(2026, 3, 14, 5, 30, 0, 0, loc)

	at, ok := x.ScheduledArrival("t1", "s1", serviceDay)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 14, 8, 0, 0, 0, loc), at)

	next, ok := x.ScheduledArrival("t1", "s2", serviceDay)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 15, 1, 10, 0, 0, loc), next, "over-24h clock rolls into the next day")

	_, ok = x.ScheduledArrival("t1", "s3", serviceDay)
	assert.False(t, ok, "stop without a scheduled time")

	_, ok = x.ScheduledArrival("t9", "s1", serviceDay)
	assert.False(t, ok, "unknown trip")
}

func TestRouteForTrip(t *testing.T) {
	x := fixtureIndex(t)

	assert.Equal(t, "r1", x.RouteForTrip("t1"))
	assert.Empty(t, x.RouteForTrip("t9"))
}

func TestLoadFileWithAgencyOverride(t *testing.T) {
	raw := buildZip(t, fixtureFiles())
	path := filepath.Join(t.TempDir(), "gtfs.zip")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	x, err := Load(config.GTFSConfig{StaticPath: path, AgencyID: "override"}, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "override", x.AgencyID())
	assert.Equal(t, 3, x.StopCount())
}

func TestLoadWithoutSource(t *testing.T) {
	_, err := Load(config.GTFSConfig{}, quietLogger())
	assert.Error(t, err)
}
