// Package store provides an optional persistent log of dispatched match
// events, useful for offline inspection of what the accelerator reported.
package store

import (
	"fmt"
	"time"
)

// Event is one dispatched match record.
type Event struct {
	JobID    uint64
	SubsetID uint16
	RuleID   uint32
	To       int // end offset within the searched buffer
	At       time.Time
}

// Store persists match events.
type Store interface {
	// AddEvent records one match event.
	AddEvent(e Event) error

	// Events returns the events recorded for a job, in insertion order.
	Events(jobID uint64) ([]Event, error)

	// Count returns the total number of recorded events.
	Count() (int64, error)

	// Close releases the underlying storage.
	Close() error
}

// Config for store initialization.
type Config struct {
	// Path is the database file path. Use ":memory:" for an in-memory
	// store (useful for testing).
	Path string
}

// New creates a Store. ":memory:" selects the in-memory backend; any other
// path selects SQLite.
func New(cfg Config) (Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if cfg.Path == ":memory:" {
		return NewMemory(), nil
	}
	return NewSQLite(cfg.Path)
}
