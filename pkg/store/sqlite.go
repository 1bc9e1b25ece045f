package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS match_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id INTEGER NOT NULL,
	subset_id INTEGER NOT NULL,
	rule_id INTEGER NOT NULL,
	end_offset INTEGER NOT NULL,
	at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_match_events_job ON match_events(job_id);
`

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a SQLite-backed store at path.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// AddEvent stores one match event.
func (s *SQLiteStore) AddEvent(e Event) error {
	_, err := s.db.Exec(`
		INSERT INTO match_events (job_id, subset_id, rule_id, end_offset, at)
		VALUES (?, ?, ?, ?, ?)
	`,
		int64(e.JobID),
		int64(e.SubsetID),
		int64(e.RuleID),
		int64(e.To),
		e.At.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("inserting match event: %w", err)
	}
	return nil
}

// Events retrieves the events recorded for a job.
func (s *SQLiteStore) Events(jobID uint64) ([]Event, error) {
	rows, err := s.db.Query(`
		SELECT job_id, subset_id, rule_id, end_offset, at
		FROM match_events WHERE job_id = ? ORDER BY id
	`, int64(jobID))
	if err != nil {
		return nil, fmt.Errorf("querying match events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Count returns the total number of recorded events.
func (s *SQLiteStore) Count() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM match_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting match events: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var (
			e                       Event
			jobID, subset, rule, at int64
			to                      int64
		)
		if err := rows.Scan(&jobID, &subset, &rule, &to, &at); err != nil {
			return nil, fmt.Errorf("scanning match event: %w", err)
		}
		e.JobID = uint64(jobID)
		e.SubsetID = uint16(subset)
		e.RuleID = uint32(rule)
		e.To = int(to)
		e.At = timeFromNanos(at)
		events = append(events, e)
	}
	return events, rows.Err()
}
