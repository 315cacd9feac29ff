package district

import (
	"encoding/json"
	"sort"

	"github.com/paulmach/orb/geojson"
)

// candidatePaths lists where upstream responses have been seen to nest the boundary,
// most specific first. The empty path is the response itself.
var candidatePaths = [][]string{
	{"response", "result", "featureCollection"},
	{"result", "featureCollection"},
	{"response", "result"},
	{"result"},
	{"featureCollection"},
	{},
}

// Normalize extracts a FeatureCollection from an arbitrarily wrapped geocoding response.
// It never panics; when nothing matches it returns a *ShapeError.
func Normalize(body []byte) (*geojson.FeatureCollection, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ShapeError{Shape: []string{"invalid json"}}
	}
	return NormalizeValue(raw)
}

// NormalizeValue is Normalize for an already decoded JSON value.
func NormalizeValue(raw any) (*geojson.FeatureCollection, error) {
	for _, path := range candidatePaths {
		v, ok := lookup(raw, path)
		if !ok {
			continue
		}
		if fc, ok := toFeatureCollection(v); ok {
			return fc, nil
		}
	}
	return nil, &ShapeError{Shape: shapeOf(raw)}
}

func lookup(v any, path []string) (any, bool) {
	cur := v
	for _, k := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[k]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, cur != nil
}

func toFeatureCollection(v any) (*geojson.FeatureCollection, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}

	var features []any
	if t, _ := m["type"].(string); t == "Feature" {
		features = []any{m}
	} else if arr, ok := m["features"].([]any); ok {
		features = make([]any, 0, len(arr))
		for _, f := range arr {
			features = append(features, withFeatureType(f))
		}
	} else {
		return nil, false
	}

	// Round-trip through orb so geometry and properties end up in canonical form.
	b, err := json.Marshal(map[string]any{
		"type":     "FeatureCollection",
		"features": features,
	})
	if err != nil {
		return nil, false
	}
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		return nil, false
	}
	return fc, true
}

// withFeatureType fills in a missing "type" member so loosely typed features still decode.
func withFeatureType(f any) any {
	m, ok := f.(map[string]any)
	if !ok {
		return f
	}
	if _, has := m["type"]; has {
		return m
	}
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out["type"] = "Feature"
	return out
}

func shapeOf(v any) []string {
	switch x := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys
	case []any:
		return []string{"array"}
	case string:
		return []string{"string"}
	case float64:
		return []string{"number"}
	case bool:
		return []string{"boolean"}
	default:
		return []string{"null"}
	}
}
