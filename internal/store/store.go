// Package store persists uploaded images in SQLite using the same layout as
// the avatar service: an images table of blobs and a key_mappings table
// pointing keys at images.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS images (
	id         TEXT PRIMARY KEY,
	data       BLOB,
	width      INTEGER NOT NULL DEFAULT 0,
	height     INTEGER NOT NULL DEFAULT 0,
	format     TEXT NOT NULL DEFAULT '',
	size       INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS key_mappings (
	key        TEXT PRIMARY KEY,
	image_id   TEXT NOT NULL REFERENCES images(id) ON DELETE CASCADE,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_key_mappings_image_id ON key_mappings(image_id);
`

// Image is the metadata stored alongside a blob.
type Image struct {
	Width  int
	Height int
	Format string
}

// Store is a SQLite-backed image store. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for tests and maintenance.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Put stores data under key. If key already maps to an image that image is
// replaced and created is false.
func (s *Store) Put(ctx context.Context, key string, data []byte, meta Image) (id string, created bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	err = tx.QueryRowContext(ctx, `SELECT image_id FROM key_mappings WHERE key = ?`, key).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = uuid.NewString()
		created = true
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO images (id, data, width, height, format, size, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, data, meta.Width, meta.Height, meta.Format, len(data), now, now); err != nil {
			return "", false, fmt.Errorf("insert image: %w", err)
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO key_mappings (key, image_id, created_at) VALUES (?, ?, ?)`,
			key, id, now); err != nil {
			return "", false, fmt.Errorf("map key: %w", err)
		}
	case err != nil:
		return "", false, fmt.Errorf("lookup key: %w", err)
	default:
		if _, err = tx.ExecContext(ctx,
			`UPDATE images SET data = ?, width = ?, height = ?, format = ?, size = ?, updated_at = ? WHERE id = ?`,
			data, meta.Width, meta.Height, meta.Format, len(data), now, id); err != nil {
			return "", false, fmt.Errorf("update image: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return "", false, fmt.Errorf("commit: %w", err)
	}
	return id, created, nil
}

// Count returns the number of stored images.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count images: %w", err)
	}
	return n, nil
}
