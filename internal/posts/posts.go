package posts

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a post does not exist.
	ErrNotFound = errors.New("post not found")
	// ErrInvalidPost is returned when a post fails validation.
	ErrInvalidPost = errors.New("invalid post")
	// ErrDistrictUnresolved is returned when the post location cannot be mapped to a district
	// carrying both a code and an English name.
	ErrDistrictUnresolved = errors.New("district could not be resolved")
)

// Post is a short note planted in a district.
type Post struct {
	ID           string    `json:"id" db:"id"`
	Content      string    `json:"content" db:"content"`
	Thumbnail    string    `json:"thumbnail,omitempty" db:"thumbnail"`
	Latitude     float64   `json:"latitude" db:"latitude"`
	Longitude    float64   `json:"longitude" db:"longitude"`
	DistrictCode string    `json:"sig_cd" db:"sig_cd"`
	EnglishName  string    `json:"sig_eng_nm" db:"sig_eng_nm"`
	KoreanName   string    `json:"sig_kor_nm,omitempty" db:"sig_kor_nm"`
	FullName     string    `json:"full_nm,omitempty" db:"full_nm"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// LocationStat aggregates the posts of one district. Latitude/Longitude is the mean
// position of those posts.
type LocationStat struct {
	DistrictCode string    `json:"sig_cd" db:"sig_cd"`
	EnglishName  string    `json:"sig_eng_nm" db:"sig_eng_nm"`
	KoreanName   string    `json:"sig_kor_nm" db:"sig_kor_nm"`
	FullName     string    `json:"full_nm" db:"full_nm"`
	PostCount    int       `json:"post_count" db:"post_count"`
	TreeSize     int       `json:"tree_size" db:"-"`
	LastPostAt   time.Time `json:"last_post_at" db:"last_post_at"`
	Latitude     float64   `json:"avg_lat" db:"avg_lat"`
	Longitude    float64   `json:"avg_lng" db:"avg_lng"`
}

// Filter narrows List results. Results are newest first.
type Filter struct {
	DistrictCode string
	Limit        int
}

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// Store persists posts.
type Store interface {
	// Create stores p, assigning ID and CreatedAt when they are empty.
	Create(ctx context.Context, p *Post) error
	Get(ctx context.Context, id string) (Post, error)
	List(ctx context.Context, f Filter) ([]Post, error)
	// Stats returns one entry per district with at least one post, ordered by code.
	Stats(ctx context.Context) ([]LocationStat, error)
}

// TreeSize maps a post count to the marker size (pixels) of a district box.
func TreeSize(postCount int) int {
	size := 32 + 4*postCount
	if size > 96 {
		return 96
	}
	return size
}
