// Package store persists durable agent state in SQLite: a small key/value
// table and an index of flight save files for recovery at startup.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register driver
)

// SaveRecord is one row of the flight save index.
type SaveRecord struct {
	FlightID string
	Path     string
	SavedAt  time.Time
}

// Store is the repository interface for agent state.
type Store interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error

	RecordSave(ctx context.Context, rec SaveRecord) error
	DeleteSave(ctx context.Context, flightID string) error
	ListSaves(ctx context.Context) ([]SaveRecord, error)

	Close() error
}

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) the state database and runs migrations.
func Open(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// WAL and a generous busy timeout; single connection avoids SQLITE_BUSY
	// during concurrent writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS state (
			key TEXT PRIMARY KEY,
			val TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS flight_saves (
			flight_id TEXT PRIMARY KEY,
			path TEXT,
			saved_at DATETIME
		);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- State ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool) {
	row := s.db.QueryRowContext(ctx, `SELECT val FROM state WHERE key = ?`, key)
	var val string
	if err := row.Scan(&val); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return "", false
		}
		return "", false
	}
	return val, true
}

func (s *SQLiteStore) SetState(ctx context.Context, key, val string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO state (key, val, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET val = excluded.val, updated_at = CURRENT_TIMESTAMP`,
		key, val)
	return err
}

func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM state WHERE key = ?`, key)
	return err
}

// --- Flight save index ---

func (s *SQLiteStore) RecordSave(ctx context.Context, rec SaveRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO flight_saves (flight_id, path, saved_at) VALUES (?, ?, ?)
		 ON CONFLICT(flight_id) DO UPDATE SET path = excluded.path, saved_at = excluded.saved_at`,
		rec.FlightID, rec.Path, rec.SavedAt.UTC())
	return err
}

func (s *SQLiteStore) DeleteSave(ctx context.Context, flightID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM flight_saves WHERE flight_id = ?`, flightID)
	return err
}

func (s *SQLiteStore) ListSaves(ctx context.Context) ([]SaveRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT flight_id, path, saved_at FROM flight_saves ORDER BY saved_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []SaveRecord
	for rows.Next() {
		var rec SaveRecord
		if err := rows.Scan(&rec.FlightID, &rec.Path, &rec.SavedAt); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
