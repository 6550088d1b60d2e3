package storage

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"strings"

	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/logze/v2"
	_ "modernc.org/sqlite" // pure Go driver, works with CGO_ENABLED=0

	"github.com/binhmuc/autobot-review/internal/model/interfaces"
)

var _ interfaces.Storage = (*Storage)(nil)

// Storage persists projects, developers and reviews in SQLite.
type Storage struct {
	db  *sql.DB
	log logze.Logger
}

// New opens the database and runs migrations.
func New(ctx context.Context, cfg Config) (*Storage, error) {
	if err := cfg.PrepareAndValidate(); err != nil {
		return nil, errm.Wrap(err, "validate config")
	}

	db, err := sql.Open("sqlite", connString(cfg.URL))
	if err != nil {
		return nil, errm.Wrap(err, "open sqlite")
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errm.Wrap(err, "ping sqlite")
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errm.Wrap(err, "migrate schema")
	}

	return &Storage{
		db:  db,
		log: logze.With("component", "storage"),
	}, nil
}

// Close releases the underlying connection pool.
func (s *Storage) Close() error {
	return s.db.Close()
}

// connString appends the pragmas every pooled connection needs. Pragmas set
// with Exec would only reach the one connection that ran them.
func connString(url string) string {
	if strings.Contains(url, "_pragma=") {
		return url
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
}

const schema = `
CREATE TABLE IF NOT EXISTS projects (
    id               TEXT PRIMARY KEY,
    forge_project_id INTEGER NOT NULL UNIQUE,
    name             TEXT NOT NULL,
    namespace        TEXT NOT NULL DEFAULT '',
    webhook_secret   TEXT NOT NULL,
    is_active        INTEGER NOT NULL DEFAULT 1,
    created_at       DATETIME NOT NULL,
    updated_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS developers (
    id            TEXT PRIMARY KEY,
    forge_user_id INTEGER NOT NULL,
    username      TEXT NOT NULL UNIQUE,
    name          TEXT NOT NULL DEFAULT '',
    email         TEXT NOT NULL DEFAULT '',
    avatar_url    TEXT NOT NULL DEFAULT '',
    created_at    DATETIME NOT NULL,
    updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS reviews (
    id                TEXT PRIMARY KEY,
    merge_request_id  INTEGER NOT NULL,
    merge_request_iid INTEGER NOT NULL,
    project_id        TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    developer_id      TEXT NOT NULL REFERENCES developers(id),
    title             TEXT NOT NULL DEFAULT '',
    description       TEXT NOT NULL DEFAULT '',
    source_url        TEXT NOT NULL DEFAULT '',
    source_branch     TEXT NOT NULL DEFAULT '',
    target_branch     TEXT NOT NULL DEFAULT '',
    status            TEXT NOT NULL DEFAULT 'PENDING',
    review_content    TEXT NOT NULL DEFAULT '{}',
    llm_usage         TEXT,
    quality_score     INTEGER NOT NULL DEFAULT 0,
    issues_found      INTEGER NOT NULL DEFAULT 0,
    suggestions_count INTEGER NOT NULL DEFAULT 0,
    created_at        DATETIME NOT NULL,
    updated_at        DATETIME NOT NULL,
    UNIQUE (merge_request_id, project_id)
);

CREATE INDEX IF NOT EXISTS idx_reviews_project ON reviews(project_id);
CREATE INDEX IF NOT EXISTS idx_reviews_status ON reviews(status);
`

func newID() (string, error) {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", errm.Wrap(err, "failed to generate id")
	}
	return hex.EncodeToString(b[:]), nil
}
