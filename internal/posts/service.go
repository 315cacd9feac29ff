package posts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/i474232898/treemap/internal/district"
	"github.com/i474232898/treemap/internal/geocoding"
	"github.com/i474232898/treemap/internal/metrics"
)

var validate = validator.New()

// CreateRequest is the input of Service.Create.
type CreateRequest struct {
	Content   string  `json:"content" validate:"required,max=500"`
	Thumbnail string  `json:"thumbnail" validate:"omitempty,url"`
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

// Service creates posts and serves per-district statistics.
type Service struct {
	store    Store
	geocoder geocoding.Service
	log      *logrus.Entry

	mu       sync.RWMutex
	stats    []LocationStat
	statsAt  time.Time
	statsTTL time.Duration
	// statsGen counts invalidations; a Refresh that saw an older value does not store.
	statsGen uint64
}

// NewService creates a Service. Stats are served from a snapshot that is rebuilt by Refresh,
// after a post is created, or when older than statsTTL.
func NewService(store Store, geocoder geocoding.Service, statsTTL time.Duration) *Service {
	if statsTTL <= 0 {
		statsTTL = time.Minute
	}
	return &Service{
		store:    store,
		geocoder: geocoder,
		log:      logrus.WithField("component", "posts"),
		statsTTL: statsTTL,
	}
}

// Create validates req, resolves the district containing the post and stores it.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Post, error) {
	req.Content = strings.TrimSpace(req.Content)
	req.Thumbnail = strings.TrimSpace(req.Thumbnail)
	if err := validate.Struct(req); err != nil {
		return Post{}, fmt.Errorf("%w: %v", ErrInvalidPost, err)
	}

	body, err := s.geocoder.DistrictByPoint(ctx, req.Latitude, req.Longitude, district.LevelSigungu)
	if err != nil {
		return Post{}, fmt.Errorf("%w: %w", ErrDistrictUnresolved, err)
	}
	b, err := district.Resolve(district.LevelSigungu, body)
	if err != nil {
		return Post{}, fmt.Errorf("%w: %w", ErrDistrictUnresolved, err)
	}
	if b.Code == "" || b.EnglishName == "" {
		return Post{}, fmt.Errorf("%w: sig_cd and sig_eng_nm are required", ErrDistrictUnresolved)
	}

	p := Post{
		Content:      req.Content,
		Thumbnail:    req.Thumbnail,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		DistrictCode: b.Code,
		EnglishName:  b.EnglishName,
		KoreanName:   b.KoreanName,
		FullName:     b.FullName,
	}
	if err := s.store.Create(ctx, &p); err != nil {
		return Post{}, fmt.Errorf("store post: %w", err)
	}

	metrics.PostsCreatedTotal.Inc()
	s.log.WithFields(logrus.Fields{"id": p.ID, "sig_cd": p.DistrictCode}).Info("post created")

	s.mu.Lock()
	s.statsAt = time.Time{}
	s.statsGen++
	s.mu.Unlock()

	return p, nil
}

// Get returns a post by ID.
func (s *Service) Get(ctx context.Context, id string) (Post, error) {
	return s.store.Get(ctx, id)
}

// List returns posts matching f, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Post, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	return s.store.List(ctx, f)
}

// Stats returns the per-district statistics snapshot, rebuilding it when stale.
func (s *Service) Stats(ctx context.Context) ([]LocationStat, error) {
	s.mu.RLock()
	stats, at := s.stats, s.statsAt
	s.mu.RUnlock()

	if !at.IsZero() && time.Since(at) < s.statsTTL {
		return stats, nil
	}
	return s.Refresh(ctx)
}

// Refresh rebuilds the statistics snapshot. A snapshot read before a concurrent Create
// finished is returned but not kept.
func (s *Service) Refresh(ctx context.Context) ([]LocationStat, error) {
	s.mu.RLock()
	gen := s.statsGen
	s.mu.RUnlock()

	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stats: %w", err)
	}
	for i := range stats {
		stats[i].TreeSize = TreeSize(stats[i].PostCount)
	}

	s.mu.Lock()
	if gen != s.statsGen {
		s.mu.Unlock()
		s.log.Debug("stats invalidated during refresh")
		return stats, nil
	}
	s.stats = stats
	s.statsAt = time.Now()
	s.mu.Unlock()

	s.log.WithField("districts", len(stats)).Debug("stats refreshed")
	return stats, nil
}

// IsUpstream reports whether err was caused by the geocoding backend rather than the input.
func IsUpstream(err error) bool {
	return errors.Is(err, geocoding.ErrUpstreamUnavailable) || errors.Is(err, geocoding.ErrMissingKey)
}
