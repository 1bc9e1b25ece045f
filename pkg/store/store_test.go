package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, s Store) {
	t.Helper()
	defer s.Close()

	now := time.Now()
	require.NoError(t, s.AddEvent(Event{JobID: 1, SubsetID: 1, RuleID: 7, To: 42, At: now}))
	require.NoError(t, s.AddEvent(Event{JobID: 1, SubsetID: 1, RuleID: 9, To: 50, At: now}))
	require.NoError(t, s.AddEvent(Event{JobID: 2, SubsetID: 2, RuleID: 7, To: 5, At: now}))

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	events, err := s.Events(1)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, uint32(7), events[0].RuleID)
	assert.Equal(t, uint32(9), events[1].RuleID)
	assert.Equal(t, 42, events[0].To)

	events, err = s.Events(99)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemory())
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	testStore(t, s)
}

func TestNewSelectsBackend(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err, "empty path rejected")

	s, err := New(Config{Path: ":memory:"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
	s.Close()

	s, err = New(Config{Path: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	s.Close()
}
