package district

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/i474232898/treemap/internal/geo"
)

// Level is the administrative level of a boundary.
type Level string

const (
	LevelSigungu Level = "sigungu"
	LevelSido    Level = "sido"
)

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	return l == LevelSigungu || l == LevelSido
}

// Boundary is a resolved administrative area with its geometry.
// A Boundary is never modified after it is built.
type Boundary struct {
	Attributes
	Level    Level                      `json:"level"`
	Geometry orb.Geometry               `json:"-"`
	Features *geojson.FeatureCollection `json:"geojson"`

	ring orb.Ring
}

// NewBoundary builds a Boundary from a normalized FeatureCollection and its attributes.
// Geometry is taken from the first feature.
func NewBoundary(level Level, attrs Attributes, fc *geojson.FeatureCollection) *Boundary {
	b := &Boundary{Attributes: attrs, Level: level, Features: fc}
	if fc != nil && len(fc.Features) > 0 && fc.Features[0] != nil {
		b.Geometry = fc.Features[0].Geometry
		b.ring, _ = geo.OuterRing(b.Geometry)
	}
	return b
}

// Contains reports whether the point lies inside the boundary's outer ring.
func (b *Boundary) Contains(p orb.Point) bool {
	if b == nil {
		return false
	}
	return geo.RingContains(b.ring, p)
}

// HasRing reports whether the boundary has a usable outer ring.
func (b *Boundary) HasRing() bool {
	return b != nil && len(b.ring) >= 3
}

// Resolve normalizes a geocoding response and extracts the district from it.
func Resolve(level Level, body []byte) (*Boundary, error) {
	fc, err := Normalize(body)
	if err != nil {
		return nil, err
	}
	extract := Extract
	if level == LevelSido {
		extract = ExtractProvince
	}
	attrs, err := extract(fc)
	if err != nil {
		return nil, err
	}
	return NewBoundary(level, attrs, fc), nil
}
