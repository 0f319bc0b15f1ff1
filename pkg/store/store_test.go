package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStateRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok := s.GetState(ctx, "agent_id")
	assert.False(t, ok)

	require.NoError(t, s.SetState(ctx, "agent_id", "abc-123"))
	val, ok := s.GetState(ctx, "agent_id")
	assert.True(t, ok)
	assert.Equal(t, "abc-123", val)

	// Upsert
	require.NoError(t, s.SetState(ctx, "agent_id", "def-456"))
	val, _ = s.GetState(ctx, "agent_id")
	assert.Equal(t, "def-456", val)

	require.NoError(t, s.DeleteState(ctx, "agent_id"))
	_, ok = s.GetState(ctx, "agent_id")
	assert.False(t, ok)
}

func TestSaveIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.RecordSave(ctx, SaveRecord{FlightID: "f1", Path: "/tmp/f1.osfl.gz", SavedAt: now}))
	require.NoError(t, s.RecordSave(ctx, SaveRecord{FlightID: "f2", Path: "/tmp/f2.osfl.gz", SavedAt: now.Add(time.Minute)}))

	recs, err := s.ListSaves(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "f2", recs[0].FlightID, "newest first")

	require.NoError(t, s.DeleteSave(ctx, "f2"))
	recs, err = s.ListSaves(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "f1", recs[0].FlightID)
}
