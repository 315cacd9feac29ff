package overlay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/i474232898/treemap/internal/district"
	"github.com/i474232898/treemap/internal/geocoding"
	"github.com/i474232898/treemap/internal/metrics"
	"github.com/i474232898/treemap/internal/posts"
)

// SidoZoomThreshold is the zoom level below which province boundaries are shown
// instead of district boundaries.
const SidoZoomThreshold = 11

var (
	// ErrSuperseded is returned by Update when a newer update started before it finished.
	ErrSuperseded = errors.New("overlay update superseded")
	// ErrNoGeometry means the response held no polygon to draw.
	ErrNoGeometry = errors.New("boundary response has no polygon")
)

// DefaultFetchTimeout bounds a single boundary fetch.
const DefaultFetchTimeout = 10 * time.Second

// Layer is the set of boundaries drawn for the districts that have posts.
type Layer struct {
	Level      district.Level       `json:"level"`
	Boundaries []*district.Boundary `json:"boundaries"`
	// Missing lists keys whose boundary could not be fetched.
	Missing []string `json:"missing,omitempty"`
}

// Overlay computes boundary layers, fetching each boundary at most once.
type Overlay struct {
	svc          geocoding.Service
	cache        *district.BoundaryCache
	limit        int
	fetchTimeout time.Duration
	log          *logrus.Entry
	group        singleflight.Group

	mu        sync.Mutex
	gen       uint64
	signature string
	current   Layer
}

// Option configures an Overlay.
type Option func(*Overlay)

// WithConcurrency limits the number of concurrent boundary fetches.
func WithConcurrency(n int) Option {
	return func(o *Overlay) {
		if n > 0 {
			o.limit = n
		}
	}
}

// WithFetchTimeout bounds each boundary fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *Overlay) {
		if d > 0 {
			o.fetchTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Entry) Option {
	return func(o *Overlay) { o.log = l }
}

// New creates an Overlay. cache may be shared with trackers.
func New(svc geocoding.Service, cache *district.BoundaryCache, opts ...Option) *Overlay {
	if cache == nil {
		cache = district.NewBoundaryCache()
	}
	o := &Overlay{
		svc:          svc,
		cache:        cache,
		limit:        4,
		fetchTimeout: DefaultFetchTimeout,
		log:          logrus.WithField("component", "overlay"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// LevelForZoom returns the boundary level shown at zoom.
func LevelForZoom(zoom float64) district.Level {
	if zoom < SidoZoomThreshold {
		return district.LevelSido
	}
	return district.LevelSigungu
}

type target struct {
	key      string
	lat, lng float64
}

// targets picks one lookup point per key. Provinces use the centroid of the first
// district seen for them.
func targets(stats []posts.LocationStat, level district.Level) []target {
	seen := make(map[string]bool, len(stats))
	out := make([]target, 0, len(stats))
	for _, s := range stats {
		if s.Latitude == 0 || s.Longitude == 0 {
			continue
		}
		key := s.DistrictCode
		if level == district.LevelSido {
			key = district.ProvinceName(s.FullName)
		}
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, target{key: key, lat: s.Latitude, lng: s.Longitude})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

func signature(level district.Level, ts []target) string {
	keys := make([]string, len(ts))
	for i, t := range ts {
		keys[i] = t.key
	}
	return string(level) + "|" + strings.Join(keys, ",")
}

// Current returns the last computed layer.
func (o *Overlay) Current() Layer {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.current
}

// Update returns the layer for stats at zoom. Boundaries are only fetched when the level
// or the set of keys changed since the last complete update; failed keys are skipped and
// retried by the next Update.
func (o *Overlay) Update(ctx context.Context, stats []posts.LocationStat, zoom float64) (Layer, error) {
	level := LevelForZoom(zoom)
	ts := targets(stats, level)
	sig := signature(level, ts)

	o.mu.Lock()
	if sig == o.signature {
		layer := o.current
		o.mu.Unlock()
		return layer, nil
	}
	o.gen++
	gen := o.gen
	o.mu.Unlock()

	results := make([]*district.Boundary, len(ts))
	var g errgroup.Group
	g.SetLimit(o.limit)
	for i, t := range ts {
		i, t := i, t
		g.Go(func() error {
			b, err := o.boundary(ctx, level, t)
			if err != nil {
				o.log.WithError(err).WithFields(logrus.Fields{"level": level, "key": t.key}).Warn("boundary fetch failed")
				return nil
			}
			results[i] = b
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Layer{}, err
	}

	layer := Layer{Level: level, Boundaries: make([]*district.Boundary, 0, len(ts))}
	for i, b := range results {
		if b == nil {
			layer.Missing = append(layer.Missing, ts[i].key)
			continue
		}
		layer.Boundaries = append(layer.Boundaries, b)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.gen {
		return Layer{}, ErrSuperseded
	}
	o.current = layer
	if len(layer.Missing) == 0 {
		o.signature = sig
	} else {
		o.signature = ""
	}
	return layer, nil
}

func (o *Overlay) boundary(ctx context.Context, level district.Level, t target) (*district.Boundary, error) {
	if b, ok := o.cached(level, t.key); ok {
		metrics.OverlayFetchesTotal.WithLabelValues(string(level), "hit").Inc()
		return b, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Shared by every waiter on the key: detached from this caller's cancellation.
	flight := context.WithoutCancel(ctx)
	ch := o.group.DoChan(string(level)+":"+t.key, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(flight, o.fetchTimeout)
		defer cancel()
		return o.fetch(fctx, level, t)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		metrics.OverlayFetchesTotal.WithLabelValues(string(level), "error").Inc()
		return nil, fmt.Errorf("%s %s: %w", level, t.key, res.Err)
	}
	metrics.OverlayFetchesTotal.WithLabelValues(string(level), "ok").Inc()
	return res.Val.(*district.Boundary), nil
}

func (o *Overlay) fetch(ctx context.Context, level district.Level, t target) (*district.Boundary, error) {
	if b, ok := o.cached(level, t.key); ok {
		return b, nil
	}
	body, err := o.svc.DistrictByPoint(ctx, t.lat, t.lng, level)
	if err != nil {
		return nil, err
	}
	fc, err := district.Normalize(body)
	if err != nil {
		return nil, err
	}

	if level == district.LevelSido {
		attrs, _ := district.ExtractProvince(fc)
		if attrs.FullName == "" {
			attrs.FullName = t.key
		}
		b := district.NewBoundary(level, attrs, fc)
		if !b.HasRing() {
			return nil, ErrNoGeometry
		}
		return o.cache.PutProvince(t.key, b), nil
	}
	attrs, _ := district.Extract(fc)
	if attrs.Code != "" && attrs.Code != t.key {
		// Centroid fell outside its own district. Drawn, not cached under t.key.
		o.log.WithFields(logrus.Fields{"want": t.key, "got": attrs.Code}).Debug("centroid resolved to a different district")
		return district.NewBoundary(level, attrs, fc), nil
	}
	attrs.Code = t.key
	b := district.NewBoundary(level, attrs, fc)
	if !b.HasRing() {
		return nil, ErrNoGeometry
	}
	return o.cache.PutDistrict(b), nil
}

func (o *Overlay) cached(level district.Level, key string) (*district.Boundary, bool) {
	if level == district.LevelSido {
		return o.cache.Province(key)
	}
	return o.cache.District(key)
}
