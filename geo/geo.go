package geo

import (
	"errors"
	"math"
)

// ErrInvalidCoordinate is returned by Distance and Bearing when either input
// is non-finite or outside the WGS84 latitude/longitude ranges.
var ErrInvalidCoordinate = errors.New("geo: invalid coordinate")

const (
	earthRadiusM = 6371000.0

	MetersPerKilometer = 1000.0
)

// Coordinate is a WGS84 point.
type Coordinate struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// Valid reports whether the coordinate is finite and within
// latitude [-90, 90] and longitude [-180, 180].
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) {
		return false
	}
	if math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// Distance returns the haversine great-circle distance between a and b in
// meters, rounded to 2 decimal places. Identical coordinates yield exactly 0.
func Distance(a, b Coordinate) (float64, error) {
	if !a.Valid() || !b.Valid() {
		return 0, ErrInvalidCoordinate
	}
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180
	la1 := a.Latitude * math.Pi / 180
	la2 := b.Latitude * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(la1)*math.Cos(la2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return roundCentimeters(earthRadiusM * c), nil
}

// Bearing returns the initial (forward azimuth) bearing from a to b in
// degrees, normalized to [0, 360). A bearing of exactly 360 wraps to 0.
func Bearing(a, b Coordinate) (float64, error) {
	if !a.Valid() || !b.Valid() {
		return 0, ErrInvalidCoordinate
	}
	la1 := a.Latitude * math.Pi / 180
	la2 := b.Latitude * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180
	y := math.Sin(dLon) * math.Cos(la2)
	x := math.Cos(la1)*math.Sin(la2) - math.Sin(la1)*math.Cos(la2)*math.Cos(dLon)
	deg := math.Atan2(y, x) * 180 / math.Pi
	deg = math.Mod(deg+360, 360)
	if deg == 360 {
		deg = 0
	}
	return deg, nil
}

// roundCentimeters rounds a meter value to 2 decimal places. Presentation
// stability: the UI re-renders on value changes, so sub-centimeter float
// jitter must not leak out.
func roundCentimeters(m float64) float64 {
	return math.Round(m*100) / 100
}
