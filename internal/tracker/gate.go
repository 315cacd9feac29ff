package tracker

import (
	"github.com/i474232898/treemap/internal/district"
	"github.com/i474232898/treemap/internal/geo"
)

type outcome string

const (
	outcomeScheduled  outcome = "scheduled"
	outcomeInaccurate outcome = "inaccurate"
	outcomeDuplicate  outcome = "duplicate"
	outcomeInside     outcome = "inside"
)

// gate decides whether a location update should schedule a lookup. Checks run in order:
// accuracy, snapped key against the last requested key, containment in the current boundary.
func gate(loc geo.Coordinate, key, lastKey string, current *district.Boundary, maxAccuracy float64) outcome {
	if loc.Accuracy != nil && *loc.Accuracy > maxAccuracy {
		return outcomeInaccurate
	}
	if key == lastKey {
		return outcomeDuplicate
	}
	if current.Contains(loc.Point()) {
		return outcomeInside
	}
	return outcomeScheduled
}
