package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// OuterRing returns the ring used for containment checks: the first ring of a Polygon,
// or the first ring of the first polygon of a MultiPolygon. Holes and further polygons
// are ignored.
func OuterRing(g orb.Geometry) (orb.Ring, bool) {
	switch v := g.(type) {
	case orb.Polygon:
		if len(v) == 0 {
			return nil, false
		}
		return v[0], true
	case orb.MultiPolygon:
		if len(v) == 0 || len(v[0]) == 0 {
			return nil, false
		}
		return v[0][0], true
	default:
		return nil, false
	}
}

// RingContains reports whether p lies inside ring. Points on an edge or vertex count as
// inside. Rings with fewer than 3 vertices contain nothing.
func RingContains(ring orb.Ring, p orb.Point) bool {
	if len(ring) < 3 {
		return false
	}
	return planar.RingContains(ring, p)
}
