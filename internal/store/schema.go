package store

import (
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// EnsureSchema creates the posts table, its indexes and the location_stats view.
func EnsureSchema(db *sqlx.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS posts (
            id UUID PRIMARY KEY,
            content TEXT NOT NULL,
            thumbnail TEXT,
            latitude DOUBLE PRECISION NOT NULL,
            longitude DOUBLE PRECISION NOT NULL,
            sig_cd TEXT NOT NULL,
            sig_eng_nm TEXT NOT NULL,
            sig_kor_nm TEXT NOT NULL DEFAULT '',
            full_nm TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_posts_sig_cd ON posts(sig_cd)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at DESC)`,
		`CREATE OR REPLACE VIEW location_stats AS
            SELECT
                p.sig_cd,
                latest.sig_eng_nm,
                latest.sig_kor_nm,
                latest.full_nm,
                COUNT(*) AS post_count,
                MAX(p.created_at) AS last_post_at,
                AVG(p.latitude) AS avg_lat,
                AVG(p.longitude) AS avg_lng
            FROM posts p
            JOIN LATERAL (
                SELECT sig_eng_nm, sig_kor_nm, full_nm
                FROM posts l
                WHERE l.sig_cd = p.sig_cd
                ORDER BY l.created_at DESC
                LIMIT 1
            ) latest ON TRUE
            GROUP BY p.sig_cd, latest.sig_eng_nm, latest.sig_kor_nm, latest.full_nm`,
	}
	for i, s := range stmts {
		logrus.WithField("idx", i).Debug("schema_exec")
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	logrus.Debug("schema_done")
	return nil
}
