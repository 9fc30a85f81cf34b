// Package sqlite provides a SQLite-backed stage watermark store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/deckhand/pkg/domain"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS stages (
	request_id TEXT PRIMARY KEY,
	stage      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// Store persists stage watermarks in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite stage store and creates its table.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create stages table: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Save upserts the watermark of requestID.
func (s *Store) Save(ctx context.Context, requestID string, stage int) error {
	if requestID == "" {
		return fmt.Errorf("request id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO stages (request_id, stage, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(request_id) DO UPDATE SET stage = excluded.stage, updated_at = excluded.updated_at`,
		requestID, domain.FormatStage(stage), time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save stage: %w", err)
	}
	return nil
}

// SetRaw stores an arbitrary textual value for requestID.
func (s *Store) SetRaw(ctx context.Context, requestID, raw string) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR REPLACE INTO stages (request_id, stage, updated_at) VALUES (?, ?, ?)`,
		requestID, raw, time.Now().UTC().UnixMilli(),
	)
	return err
}

// Load reads the watermark of requestID.
func (s *Store) Load(ctx context.Context, requestID string) (int, error) {
	var raw string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT stage FROM stages WHERE request_id = ?`, requestID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrStageNotFound
		}
		return 0, fmt.Errorf("load stage: %w", err)
	}
	return domain.ParseStage(raw)
}

// Delete removes the watermark of requestID.
func (s *Store) Delete(ctx context.Context, requestID string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM stages WHERE request_id = ?`, requestID); err != nil {
		return fmt.Errorf("delete stage: %w", err)
	}
	return nil
}

// List returns the request ids holding a watermark, oldest update first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT request_id FROM stages ORDER BY updated_at, request_id`)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stage row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stage rows: %w", err)
	}
	return ids, nil
}
