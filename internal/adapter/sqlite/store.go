// Package sqlite persists streamed readings and serves them as a sample store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/couchcryptid/aquifer-watch-service/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS samples (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	source TEXT NOT NULL,
	date   TEXT NOT NULL,
	level  REAL NOT NULL,
	UNIQUE(source, date)
);
CREATE INDEX IF NOT EXISTS idx_samples_source ON samples(source);`

// Store keeps one row per source and calendar day. A later reading for the
// same day replaces the earlier one.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY between
	// the ingest pipeline and request handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite ping: %w", err)
	}
	return nil
}

// ListSources returns every source with at least one stored sample, sorted.
func (s *Store) ListSources(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT source FROM samples ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LoadSamples returns a source's samples in date order.
func (s *Store) LoadSamples(ctx context.Context, source string) ([]domain.Sample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, level FROM samples WHERE source = ? ORDER BY date, id`, source)
	if err != nil {
		return nil, fmt.Errorf("query samples for %s: %w", source, err)
	}
	defer rows.Close()

	var samples []domain.Sample
	for i := 1; rows.Next(); i++ {
		var (
			date  string
			level float64
		)
		if err := rows.Scan(&date, &level); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		d, err := time.Parse(domain.DateLayout, date)
		if err != nil {
			return nil, &domain.MalformedSampleError{Record: i, Field: "date", Value: date, Err: err}
		}
		samples = append(samples, domain.Sample{Date: d, Level: level})
	}
	return samples, rows.Err()
}

// LoadBatch upserts readings in a single transaction.
func (s *Store) LoadBatch(ctx context.Context, readings []domain.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples(source, date, level)
		VALUES(?, ?, ?)
		ON CONFLICT(source, date) DO UPDATE SET level = excluded.level`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range readings {
		if _, err := stmt.ExecContext(ctx, r.Source, r.Date.Format(domain.DateLayout), r.Level); err != nil {
			return fmt.Errorf("insert %s at %s: %w", r.Source, r.Date.Format(domain.DateLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
