package geo

import (
	"math"
	"strconv"

	"github.com/paulmach/orb"
)

// SnapDigits is the number of decimal digits kept when snapping (roughly 11 m cells).
const SnapDigits = 4

// Coordinate is a single reading from a live-location provider.
// Accuracy is the horizontal uncertainty in meters; nil when the provider did not report one.
type Coordinate struct {
	Latitude  float64  `json:"lat"`
	Longitude float64  `json:"lng"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
}

// Point returns the coordinate as an orb point (lon, lat).
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Longitude, c.Latitude}
}

// SnappedCoordinate is a Coordinate rounded to SnapDigits decimals.
type SnappedCoordinate struct {
	Latitude  float64
	Longitude float64
}

// Snap rounds lat/lng to SnapDigits decimals.
func Snap(c Coordinate) SnappedCoordinate {
	return SnappedCoordinate{
		Latitude:  round(c.Latitude, SnapDigits),
		Longitude: round(c.Longitude, SnapDigits),
	}
}

// Key returns a canonical string key, e.g. "37.5665,126.9780".
func (s SnappedCoordinate) Key() string {
	return strconv.FormatFloat(s.Latitude, 'f', SnapDigits, 64) + "," +
		strconv.FormatFloat(s.Longitude, 'f', SnapDigits, 64)
}

func round(v float64, digits int) float64 {
	p := math.Pow10(digits)
	return math.Round(v*p) / p
}
