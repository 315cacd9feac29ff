package store

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/i474232898/treemap/internal/posts"
)

// PostgresStore implements posts.Store on PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// Connect opens a PostgreSQL connection, pings it and ensures the schema.
func Connect(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ensure schema")
	}
	return NewPostgresStore(db), nil
}

// NewPostgresStore wraps an open database.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close closes the database.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// postRow mirrors the posts table; thumbnail is nullable.
type postRow struct {
	ID           string      `db:"id"`
	Content      string      `db:"content"`
	Thumbnail    null.String `db:"thumbnail"`
	Latitude     float64     `db:"latitude"`
	Longitude    float64     `db:"longitude"`
	DistrictCode string      `db:"sig_cd"`
	EnglishName  string      `db:"sig_eng_nm"`
	KoreanName   string      `db:"sig_kor_nm"`
	FullName     string      `db:"full_nm"`
	CreatedAt    time.Time   `db:"created_at"`
}

func (r postRow) post() posts.Post {
	return posts.Post{
		ID:           r.ID,
		Content:      r.Content,
		Thumbnail:    r.Thumbnail.String,
		Latitude:     r.Latitude,
		Longitude:    r.Longitude,
		DistrictCode: r.DistrictCode,
		EnglishName:  r.EnglishName,
		KoreanName:   r.KoreanName,
		FullName:     r.FullName,
		CreatedAt:    r.CreatedAt,
	}
}

const postColumns = `id, content, thumbnail, latitude, longitude, sig_cd, sig_eng_nm, sig_kor_nm, full_nm, created_at`

// Create inserts a post.
func (s *PostgresStore) Create(ctx context.Context, p *posts.Post) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	thumbnail := null.NewString(p.Thumbnail, p.Thumbnail != "")

	SQL := `INSERT INTO posts(` + postColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.db.ExecContext(ctx, SQL, p.ID, p.Content, thumbnail, p.Latitude, p.Longitude,
		p.DistrictCode, p.EnglishName, p.KoreanName, p.FullName, p.CreatedAt)
	return errors.Wrap(err, "insert post")
}

// Get returns a post by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (posts.Post, error) {
	if _, err := uuid.Parse(id); err != nil {
		return posts.Post{}, posts.ErrNotFound
	}
	var row postRow
	SQL := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	if err := s.db.GetContext(ctx, &row, SQL, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return posts.Post{}, posts.ErrNotFound
		}
		return posts.Post{}, errors.Wrap(err, "get post")
	}
	return row.post(), nil
}

// List returns posts newest first.
func (s *PostgresStore) List(ctx context.Context, f posts.Filter) ([]posts.Post, error) {
	SQL := `SELECT ` + postColumns + ` FROM posts `
	var args []interface{}
	if f.DistrictCode != "" {
		args = append(args, f.DistrictCode)
		SQL += `WHERE sig_cd = $1 `
	}
	SQL += `ORDER BY created_at DESC, id DESC `
	if f.Limit > 0 {
		args = append(args, f.Limit)
		SQL += `LIMIT $` + strconv.Itoa(len(args))
	}

	rows := make([]postRow, 0)
	if err := s.db.SelectContext(ctx, &rows, SQL, args...); err != nil {
		return nil, errors.Wrap(err, "list posts")
	}
	result := make([]posts.Post, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.post())
	}
	return result, nil
}

// Stats reads the location_stats view.
func (s *PostgresStore) Stats(ctx context.Context) ([]posts.LocationStat, error) {
	SQL := `SELECT sig_cd, sig_eng_nm, sig_kor_nm, full_nm, post_count, last_post_at, avg_lat, avg_lng
		FROM location_stats
		ORDER BY sig_cd`
	stats := make([]posts.LocationStat, 0)
	if err := s.db.SelectContext(ctx, &stats, SQL); err != nil {
		return nil, errors.Wrap(err, "load location stats")
	}
	return stats, nil
}
