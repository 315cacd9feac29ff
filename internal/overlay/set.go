package overlay

import (
	"context"
	"errors"

	"github.com/i474232898/treemap/internal/district"
	"github.com/i474232898/treemap/internal/geocoding"
	"github.com/i474232898/treemap/internal/posts"
)

// Set keeps one Overlay per level over a shared boundary cache, so that requests at
// province and district zoom do not supersede each other.
type Set struct {
	levels map[district.Level]*Overlay
}

// NewSet creates a Set.
func NewSet(svc geocoding.Service, cache *district.BoundaryCache, opts ...Option) *Set {
	if cache == nil {
		cache = district.NewBoundaryCache()
	}
	return &Set{levels: map[district.Level]*Overlay{
		district.LevelSido:    New(svc, cache, opts...),
		district.LevelSigungu: New(svc, cache, opts...),
	}}
}

// Update returns the layer for zoom. When a newer update for the same level won the race,
// its layer is returned instead.
func (s *Set) Update(ctx context.Context, stats []posts.LocationStat, zoom float64) (Layer, error) {
	o := s.levels[LevelForZoom(zoom)]
	layer, err := o.Update(ctx, stats, zoom)
	if errors.Is(err, ErrSuperseded) {
		return o.Current(), nil
	}
	return layer, err
}

// Warm computes both levels for stats.
func (s *Set) Warm(ctx context.Context, stats []posts.LocationStat) error {
	if _, err := s.Update(ctx, stats, SidoZoomThreshold-1); err != nil {
		return err
	}
	_, err := s.Update(ctx, stats, SidoZoomThreshold)
	return err
}
