package geo

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func TestSnapRoundsToFourDecimals(t *testing.T) {
	a := Snap(Coordinate{Latitude: 37.566512, Longitude: 126.978049})
	b := Snap(Coordinate{Latitude: 37.566538, Longitude: 126.978011})

	assert.Equal(t, a, b)
	assert.Equal(t, "37.5665,126.9780", a.Key())
}

func TestSnapDistinctCells(t *testing.T) {
	a := Snap(Coordinate{Latitude: 37.56650, Longitude: 126.97800})
	b := Snap(Coordinate{Latitude: 37.56660, Longitude: 126.97800})

	assert.NotEqual(t, a.Key(), b.Key())
}

var square = orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}

func TestRingContains(t *testing.T) {
	cases := []struct {
		name string
		ring orb.Ring
		p    orb.Point
		want bool
	}{
		{"inside", square, orb.Point{5, 5}, true},
		{"outside", square, orb.Point{15, 5}, false},
		{"on edge", square, orb.Point{10, 5}, true},
		{"on vertex", square, orb.Point{0, 0}, true},
		{"open ring", orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}}, orb.Point{5, 5}, true},
		{"two vertices", orb.Ring{{0, 0}, {10, 10}}, orb.Point{5, 5}, false},
		{"empty", nil, orb.Point{0, 0}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RingContains(tc.ring, tc.p))
			// same answer every time
			assert.Equal(t, tc.want, RingContains(tc.ring, tc.p))
		})
	}
}

func TestOuterRing(t *testing.T) {
	hole := orb.Ring{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}}

	r, ok := OuterRing(orb.Polygon{square, hole})
	assert.True(t, ok)
	assert.Equal(t, square, r)
	// holes are ignored
	assert.True(t, RingContains(r, orb.Point{5, 5}))

	far := orb.Polygon{{{20, 20}, {30, 20}, {30, 30}, {20, 20}}}
	r, ok = OuterRing(orb.MultiPolygon{{square}, far})
	assert.True(t, ok)
	assert.Equal(t, square, r)
	assert.False(t, RingContains(r, orb.Point{25, 22}))

	_, ok = OuterRing(orb.Point{1, 1})
	assert.False(t, ok)
	_, ok = OuterRing(orb.MultiPolygon{})
	assert.False(t, ok)
	_, ok = OuterRing(nil)
	assert.False(t, ok)
}
