// Package audit checks every image blob in an avatar database without
// writing to it.
package audit

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// ErrNoDatabase is returned by Open when the file does not exist.
var ErrNoDatabase = errors.New("database file not found")

// IssueKind tells what is wrong with a row.
type IssueKind string

const (
	IssueCorrupt IssueKind = "corrupt"
	IssueSchema  IssueKind = "schema"
)

// Issue is one damaged row.
type Issue struct {
	Kind   IssueKind
	ID     string
	Reason string
}

// Stats is the result of a scan.
type Stats struct {
	Scanned      uint64
	Healthy      uint64
	Corrupted    uint64
	SchemaErrors uint64
	Issues       []Issue
	Elapsed      time.Duration
}

// Damaged reports whether any row failed a check.
func (s *Stats) Damaged() bool {
	return s.Corrupted > 0 || s.SchemaErrors > 0
}

// Auditor scans one database.
type Auditor struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// Open opens path read-only. The file must exist.
func Open(path string, logger *zap.Logger) (*Auditor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoDatabase, path)
		}
		return nil, fmt.Errorf("stat database: %w", err)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro&_query_only=true", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Auditor{db: db, path: path, logger: logger}, nil
}

// Close closes the database.
func (a *Auditor) Close() error {
	return a.db.Close()
}

// Scan reads every row of images and decodes its blob. A row whose id is
// not text or whose data is not a blob is a schema error; a blob that does
// not decode as an image is corrupt. Scan stops early only on a query
// failure or when ctx ends.
func (a *Auditor) Scan(ctx context.Context) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}

	rows, err := a.db.QueryContext(ctx, `SELECT id, data FROM images`)
	if err != nil {
		return nil, fmt.Errorf("query images: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		stats.Scanned++

		var rawID, rawData any
		if err := rows.Scan(&rawID, &rawData); err != nil {
			stats.schemaError("", err.Error())
			continue
		}

		id, ok := asText(rawID)
		if !ok {
			stats.schemaError(id, fmt.Sprintf("id has type %T, want TEXT", rawID))
			continue
		}
		blob, ok := rawData.([]byte)
		if !ok {
			stats.schemaError(id, fmt.Sprintf("data has type %T, want BLOB", rawData))
			continue
		}

		if _, _, err := image.Decode(bytes.NewReader(blob)); err != nil {
			stats.Corrupted++
			stats.Issues = append(stats.Issues, Issue{Kind: IssueCorrupt, ID: id, Reason: err.Error()})
			a.logger.Debug("corrupt blob", zap.String("id", id), zap.Error(err))
			continue
		}
		stats.Healthy++
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("iterate images: %w", err)
	}

	stats.Elapsed = time.Since(start)
	a.logger.Info("audit finished",
		zap.String("path", a.path),
		zap.Uint64("scanned", stats.Scanned),
		zap.Uint64("healthy", stats.Healthy),
		zap.Uint64("corrupted", stats.Corrupted),
		zap.Uint64("schema_errors", stats.SchemaErrors),
		zap.Duration("elapsed", stats.Elapsed))
	return stats, nil
}

func (s *Stats) schemaError(id, reason string) {
	s.SchemaErrors++
	s.Issues = append(s.Issues, Issue{Kind: IssueSchema, ID: id, Reason: reason})
}

func asText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	case nil:
		return "", false
	default:
		return fmt.Sprint(t), false
	}
}
