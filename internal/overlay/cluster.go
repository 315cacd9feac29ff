package overlay

import (
	"sort"

	"github.com/i474232898/treemap/internal/district"
	"github.com/i474232898/treemap/internal/posts"
)

// ClusterLevel is the granularity of tree markers.
type ClusterLevel string

const (
	ClusterCity     ClusterLevel = "city"
	ClusterDistrict ClusterLevel = "district"
	ClusterPost     ClusterLevel = "post"
)

// ClusterLevelForZoom returns the marker granularity shown at zoom.
func ClusterLevelForZoom(zoom float64) ClusterLevel {
	switch {
	case zoom < 10:
		return ClusterCity
	case zoom < 13:
		return ClusterDistrict
	default:
		return ClusterPost
	}
}

// Marker is one tree marker on the map.
type Marker struct {
	Level     ClusterLevel `json:"level"`
	Key       string       `json:"key"`
	Label     string       `json:"label,omitempty"`
	Count     int          `json:"count"`
	Latitude  float64      `json:"lat"`
	Longitude float64      `json:"lng"`
	Size      int          `json:"size"`
	Color     string       `json:"color"`
	Shape     string       `json:"shape"`
	// ZoomTo is the zoom to jump to when the marker is selected; 0 for posts.
	ZoomTo int `json:"zoom_to,omitempty"`
}

const postMarkerSize = 34

// BoxColor returns the fill colour for a marker with n posts.
func BoxColor(n int) string {
	switch {
	case n >= 20:
		return "#15803d"
	case n >= 10:
		return "#16a34a"
	case n >= 5:
		return "#22c55e"
	case n >= 2:
		return "#4ade80"
	default:
		return "#86efac"
	}
}

// CitySize returns the diameter of a province circle holding n posts.
func CitySize(n int) int {
	size := 36 + 2*n
	if size < 44 {
		size = 44
	}
	if size > 120 {
		size = 120
	}
	return size
}

// Clusters returns the markers for zoom: province circles, district boxes or single posts.
// Entries without a position are skipped.
func Clusters(stats []posts.LocationStat, ps []posts.Post, zoom float64) []Marker {
	switch ClusterLevelForZoom(zoom) {
	case ClusterCity:
		return cityMarkers(stats)
	case ClusterDistrict:
		return districtMarkers(stats)
	default:
		return postMarkers(ps)
	}
}

func cityMarkers(stats []posts.LocationStat) []Marker {
	type agg struct {
		count          int
		sumLat, sumLng float64
	}
	cities := make(map[string]*agg)
	for _, s := range stats {
		if s.Latitude == 0 || s.Longitude == 0 {
			continue
		}
		name := district.ProvinceName(s.FullName)
		a, ok := cities[name]
		if !ok {
			a = &agg{}
			cities[name] = a
		}
		a.count += s.PostCount
		a.sumLat += s.Latitude * float64(s.PostCount)
		a.sumLng += s.Longitude * float64(s.PostCount)
	}

	markers := make([]Marker, 0, len(cities))
	for name, a := range cities {
		if a.count == 0 {
			continue
		}
		size := CitySize(a.count)
		markers = append(markers, Marker{
			Level:     ClusterCity,
			Key:       name,
			Label:     truncate(name, 5),
			Count:     a.count,
			Latitude:  a.sumLat / float64(a.count),
			Longitude: a.sumLng / float64(a.count),
			Size:      size,
			Color:     BoxColor(a.count),
			Shape:     "circle",
			ZoomTo:    10,
		})
	}
	sort.Slice(markers, func(i, j int) bool { return markers[i].Key < markers[j].Key })
	return markers
}

func districtMarkers(stats []posts.LocationStat) []Marker {
	markers := make([]Marker, 0, len(stats))
	for _, s := range stats {
		if s.Latitude == 0 || s.Longitude == 0 || s.PostCount == 0 {
			continue
		}
		size := s.TreeSize
		if size == 0 {
			size = posts.TreeSize(s.PostCount)
		}
		m := Marker{
			Level:     ClusterDistrict,
			Key:       s.DistrictCode,
			Count:     s.PostCount,
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
			Size:      size,
			Color:     BoxColor(s.PostCount),
			Shape:     "rect",
			ZoomTo:    13,
		}
		// Small boxes only fit the count.
		if size >= 50 {
			m.Label = truncate(s.KoreanName, 4)
		}
		markers = append(markers, m)
	}
	return markers
}

func postMarkers(ps []posts.Post) []Marker {
	markers := make([]Marker, 0, len(ps))
	for _, p := range ps {
		if p.Latitude == 0 || p.Longitude == 0 {
			continue
		}
		markers = append(markers, Marker{
			Level:     ClusterPost,
			Key:       p.ID,
			Count:     1,
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
			Size:      postMarkerSize,
			Color:     "#22c55e",
			Shape:     "circle",
		})
	}
	return markers
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + ".."
}
