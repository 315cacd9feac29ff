package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/treemap/internal/posts"
)

// districtPosts holds the posts of one district in creation order.
type districtPosts struct {
	Posts []posts.Post
}

// MemoryStore is a concurrency-safe in-memory implementation of posts.Store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: district code, value: posts
	data map[string]*districtPosts
	byID map[string]posts.Post

	// retention configuration
	maxPerDistrict int // max number of posts kept per district
	now            func() time.Time
}

// NewMemoryStore creates a new MemoryStore.
// If maxPerDistrict is <= 0, it is treated as unlimited.
func NewMemoryStore(maxPerDistrict int) *MemoryStore {
	return &MemoryStore{
		data:           make(map[string]*districtPosts),
		byID:           make(map[string]posts.Post),
		maxPerDistrict: maxPerDistrict,
		now:            time.Now,
	}
}

// Create appends a post to its district and enforces retention.
func (s *MemoryStore) Create(_ context.Context, p *posts.Post) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.data[p.DistrictCode]
	if !ok {
		history = &districtPosts{}
		s.data[p.DistrictCode] = history
	}
	history.Posts = append(history.Posts, *p)
	s.byID[p.ID] = *p

	// Enforce retention by count.
	if s.maxPerDistrict > 0 && len(history.Posts) > s.maxPerDistrict {
		over := len(history.Posts) - s.maxPerDistrict
		for _, old := range history.Posts[:over] {
			delete(s.byID, old.ID)
		}
		history.Posts = history.Posts[over:]
	}
	return nil
}

// Get returns a post by ID.
func (s *MemoryStore) Get(_ context.Context, id string) (posts.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[id]
	if !ok {
		return posts.Post{}, posts.ErrNotFound
	}
	return p, nil
}

// List returns posts newest first, optionally restricted to one district.
func (s *MemoryStore) List(_ context.Context, f posts.Filter) ([]posts.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []posts.Post
	if f.DistrictCode != "" {
		if history, ok := s.data[f.DistrictCode]; ok {
			result = append(result, history.Posts...)
		}
	} else {
		for _, history := range s.data {
			result = append(result, history.Posts...)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	if result == nil {
		result = []posts.Post{}
	}
	return result, nil
}

// Stats aggregates posts per district. Names come from the most recent post.
func (s *MemoryStore) Stats(_ context.Context) ([]posts.LocationStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make([]posts.LocationStat, 0, len(s.data))
	for code, history := range s.data {
		if len(history.Posts) == 0 {
			continue
		}
		st := posts.LocationStat{DistrictCode: code, PostCount: len(history.Posts)}
		var sumLat, sumLng float64
		for _, p := range history.Posts {
			sumLat += p.Latitude
			sumLng += p.Longitude
			if !p.CreatedAt.Before(st.LastPostAt) {
				st.LastPostAt = p.CreatedAt
				st.EnglishName = p.EnglishName
				st.KoreanName = p.KoreanName
				st.FullName = p.FullName
			}
		}
		st.Latitude = sumLat / float64(st.PostCount)
		st.Longitude = sumLng / float64(st.PostCount)
		stats = append(stats, st)
	}

	sort.Slice(stats, func(i, j int) bool { return stats[i].DistrictCode < stats[j].DistrictCode })
	return stats, nil
}
