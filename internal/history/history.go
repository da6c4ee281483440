// Package history persists applied auto-corrections and analysis activity in
// SQLite so reverts and usage can be inspected after the fact.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"proofd/internal/autocorrect"
)

// Schema for the proofd history store.
const schema = `
CREATE TABLE IF NOT EXISTS corrections (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    surface_id      TEXT NOT NULL,
    original        TEXT NOT NULL,
    corrected       TEXT NOT NULL,
    start_off       INTEGER NOT NULL,
    end_off         INTEGER NOT NULL,
    applied_at_ns   INTEGER NOT NULL,
    reverted        INTEGER NOT NULL DEFAULT 0,
    reverted_at_ns  INTEGER
);

CREATE INDEX IF NOT EXISTS idx_corrections_surface ON corrections(surface_id, applied_at_ns);
CREATE INDEX IF NOT EXISTS idx_corrections_applied ON corrections(applied_at_ns);

CREATE TABLE IF NOT EXISTS counters (
    name    TEXT PRIMARY KEY,
    value   INTEGER NOT NULL
);
`

// Correction is one persisted auto-correction.
type Correction struct {
	ID         int64
	SurfaceID  string
	Original   string
	Corrected  string
	Start      int
	End        int
	AppliedAt  time.Time
	Reverted   bool
	RevertedAt time.Time
}

// Stats summarizes stored activity.
type Stats struct {
	Corrections int64
	Reverted    int64
	Passes      int64
}

// Store is the SQLite-backed history store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path and applies
// the schema.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordCorrection persists an applied correction and returns its row ID.
func (s *Store) RecordCorrection(rec autocorrect.CorrectionRecord) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO corrections (surface_id, original, corrected, start_off, end_off, applied_at_ns)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.SurfaceID, rec.Original, rec.Corrected, rec.Start, rec.End, rec.AppliedAt.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert correction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// MarkReverted flags the newest unreverted correction for a surface. The
// correction slot is single-valued, so the newest row is always the one a
// revert undid.
func (s *Store) MarkReverted(surfaceID string, at time.Time) error {
	_, err := s.db.Exec(`
		UPDATE corrections SET reverted = 1, reverted_at_ns = ?
		WHERE id = (
			SELECT id FROM corrections
			WHERE surface_id = ? AND reverted = 0
			ORDER BY applied_at_ns DESC LIMIT 1
		)`,
		at.UnixNano(), surfaceID,
	)
	if err != nil {
		return fmt.Errorf("mark reverted: %w", err)
	}
	return nil
}

// RecordPass increments the lifetime analysis-pass counter.
func (s *Store) RecordPass() error {
	_, err := s.db.Exec(`
		INSERT INTO counters (name, value) VALUES ('passes', 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1`)
	if err != nil {
		return fmt.Errorf("record pass: %w", err)
	}
	return nil
}

// RecentCorrections returns the newest corrections, most recent first.
func (s *Store) RecentCorrections(limit int) ([]Correction, error) {
	rows, err := s.db.Query(`
		SELECT id, surface_id, original, corrected, start_off, end_off, applied_at_ns, reverted, reverted_at_ns
		FROM corrections ORDER BY applied_at_ns DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query corrections: %w", err)
	}
	defer rows.Close()

	var out []Correction
	for rows.Next() {
		var (
			c          Correction
			appliedNs  int64
			reverted   int
			revertedNs sql.NullInt64
		)
		if err := rows.Scan(&c.ID, &c.SurfaceID, &c.Original, &c.Corrected, &c.Start, &c.End, &appliedNs, &reverted, &revertedNs); err != nil {
			return nil, fmt.Errorf("scan correction: %w", err)
		}
		c.AppliedAt = time.Unix(0, appliedNs)
		c.Reverted = reverted != 0
		if revertedNs.Valid {
			c.RevertedAt = time.Unix(0, revertedNs.Int64)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Stats returns lifetime counters.
func (s *Store) Stats() (Stats, error) {
	var st Stats

	if err := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(reverted), 0) FROM corrections`).
		Scan(&st.Corrections, &st.Reverted); err != nil {
		return Stats{}, fmt.Errorf("count corrections: %w", err)
	}

	err := s.db.QueryRow(`SELECT value FROM counters WHERE name = 'passes'`).Scan(&st.Passes)
	if err != nil && err != sql.ErrNoRows {
		return Stats{}, fmt.Errorf("read pass counter: %w", err)
	}
	return st, nil
}

// Prune deletes corrections older than the retention window.
func (s *Store) Prune(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UnixNano()
	result, err := s.db.Exec(`DELETE FROM corrections WHERE applied_at_ns < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune corrections: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
