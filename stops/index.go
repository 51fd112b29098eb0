package stops

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ciotlosm/neary-sub003/config"
	"github.com/ciotlosm/neary-sub003/geo"
)

// Stop is one physical stop from stops.txt.
type Stop struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Position geo.Coordinate `json:"position"`
}

// StopTime is one row of a trip's schedule. Arrival and Departure are
// seconds past service midnight (GTFS clock times may exceed 24h); -1 means
// the feed carried no time for that stop.
type StopTime struct {
	StopID    string `json:"stopId"`
	Sequence  int    `json:"sequence"`
	Arrival   int    `json:"arrival"`
	Departure int    `json:"departure"`
}

// Index holds the loaded static feed. Built once, then read-only.
type Index struct {
	log       *logrus.Logger
	agencyID  string
	agencyTZ  *time.Location
	stops     map[string]Stop
	tripRoute map[string]string
	tripStops map[string][]StopTime
}

func newIndex(log *logrus.Logger) *Index {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Index{
		log:       log,
		agencyTZ:  time.UTC,
		stops:     map[string]Stop{},
		tripRoute: map[string]string{},
		tripStops: map[string][]StopTime{},
	}
}

// Load builds an Index from the configured static feed. A local path wins
// over a URL when both are set, and a configured agency ID overrides the
// one in agency.txt.
func Load(cfg config.GTFSConfig, log *logrus.Logger) (*Index, error) {
	var (
		x   *Index
		err error
	)
	switch {
	case cfg.StaticPath != "":
		x, err = LoadFile(cfg.StaticPath, log)
	case cfg.StaticURL != "":
		x, err = LoadURL(cfg.StaticURL, log)
	default:
		return nil, fmt.Errorf("stops: no static feed configured")
	}
	if err != nil {
		return nil, err
	}
	if cfg.AgencyID != "" {
		x.agencyID = cfg.AgencyID
	}
	return x, nil
}

// LoadFile builds an Index from a GTFS zip on disk.
func LoadFile(path string, log *logrus.Logger) (*Index, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("stops: open %s: %w", path, err)
	}
	defer zr.Close()
	return FromZipReader(&zr.Reader, log)
}

// LoadURL downloads a GTFS zip to a temp file and builds an Index from it.
func LoadURL(url string, log *logrus.Logger) (*Index, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("stops: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stops: fetch %s: status %d", url, resp.StatusCode)
	}
	tmp, err := os.CreateTemp("", "gtfs-*.zip")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	return LoadFile(tmp.Name(), log)
}

// FromZipReader builds an Index from an already-open GTFS zip.
func FromZipReader(zr *zip.Reader, log *logrus.Logger) (*Index, error) {
	x := newIndex(log)
	for _, f := range zr.File {
		name := strings.ToLower(f.Name)
		switch name {
		case "agency.txt", "stops.txt", "trips.txt", "stop_times.txt":
			if err := x.consumeCSV(f, name); err != nil {
				return nil, fmt.Errorf("stops: %s: %w", name, err)
			}
		}
	}
	for trip := range x.tripStops {
		sort.Slice(x.tripStops[trip], func(i, j int) bool {
			return x.tripStops[trip][i].Sequence < x.tripStops[trip][j].Sequence
		})
	}
	x.log.WithFields(logrus.Fields{
		"stops": len(x.stops),
		"trips": len(x.tripStops),
	}).Info("static feed indexed")
	return x, nil
}

func (x *Index) consumeCSV(f *zip.File, name string) error {
	r, err := f.Open()
	if err != nil {
		return err
	}
	defer r.Close()
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1
	rec, err := csvr.ReadAll()
	if err != nil {
		return err
	}
	if len(rec) < 2 {
		return nil
	}
	head := rec[0]
	idx := func(col string) int {
		for i, h := range head {
			if strings.EqualFold(strings.TrimSpace(h), col) {
				return i
			}
		}
		return -1
	}
	field := func(row []string, i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	switch name {
	case "agency.txt":
		agID := idx("agency_id")
		agTZ := idx("agency_timezone")
		if x.agencyID == "" {
			x.agencyID = field(rec[1], agID)
		}
		if tz := field(rec[1], agTZ); tz != "" {
			loc, err := time.LoadLocation(tz)
			if err != nil {
				x.log.WithField("timezone", tz).WithError(err).
					Warn("unknown agency timezone, using UTC")
			} else {
				x.agencyTZ = loc
			}
		}
	case "stops.txt":
		sID := idx("stop_id")
		sName := idx("stop_name")
		sLat := idx("stop_lat")
		sLon := idx("stop_lon")
		for _, row := range rec[1:] {
			id := field(row, sID)
			if id == "" {
				continue
			}
			s := Stop{ID: id, Name: field(row, sName)}
			lat, latErr := strconv.ParseFloat(field(row, sLat), 64)
			lon, lonErr := strconv.ParseFloat(field(row, sLon), 64)
			if latErr == nil && lonErr == nil {
				s.Position = geo.Coordinate{Latitude: lat, Longitude: lon}
			} else {
				// NaN keeps the stop out of distance queries; {0,0} is a
				// real place.
				s.Position = geo.Coordinate{Latitude: math.NaN(), Longitude: math.NaN()}
			}
			x.stops[id] = s
		}
	case "trips.txt":
		rID := idx("route_id")
		tID := idx("trip_id")
		for _, row := range rec[1:] {
			trip := field(row, tID)
			if trip == "" {
				continue
			}
			x.tripRoute[trip] = field(row, rID)
		}
	case "stop_times.txt":
		tID := idx("trip_id")
		sID := idx("stop_id")
		sq := idx("stop_sequence")
		arr := idx("arrival_time")
		dep := idx("departure_time")
		if tID < 0 || sID < 0 || sq < 0 {
			return nil
		}
		for _, row := range rec[1:] {
			trip := field(row, tID)
			stop := field(row, sID)
			if trip == "" || stop == "" {
				continue
			}
			seq, err := strconv.Atoi(field(row, sq))
			if err != nil {
				continue
			}
			x.tripStops[trip] = append(x.tripStops[trip], StopTime{
				StopID:    stop,
				Sequence:  seq,
				Arrival:   parseClock(field(row, arr)),
				Departure: parseClock(field(row, dep)),
			})
		}
	}
	return nil
}

// parseClock converts a GTFS HH:MM:SS clock time to seconds past service
// midnight. Hours past 23 are legal for after-midnight trips. Returns -1
// for empty or malformed values.
func parseClock(s string) int {
	if s == "" {
		return -1
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return -1
	}
	h, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	m, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	sec, err3 := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err1 != nil || err2 != nil || err3 != nil || h < 0 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return -1
	}
	return h*3600 + m*60 + sec
}
