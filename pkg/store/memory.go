package store

import (
	"sync"
	"time"
)

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
}

// NewMemory creates an in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

// AddEvent records one match event.
func (s *MemoryStore) AddEvent(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// Events returns the events recorded for a job, in insertion order.
func (s *MemoryStore) Events(jobID uint64) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Count returns the total number of recorded events.
func (s *MemoryStore) Count() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.events)), nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

func timeFromNanos(ns int64) time.Time {
	return time.Unix(0, ns)
}
