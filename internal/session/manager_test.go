package session

import (
	"context"
	"testing"
	"time"

	"github.com/ndjson-viewer/backend/internal/config"
	"github.com/ndjson-viewer/backend/internal/ingest"
	"github.com/ndjson-viewer/backend/internal/logging"
	"github.com/ndjson-viewer/backend/internal/models"
	"github.com/ndjson-viewer/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, max int) *Manager {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Sessions.MaxSessions = max
	cfg.Storage.TempDirectory = t.TempDir()
	cfg.Ingest.ChunkSizeBytes = 256

	opts := OptionsFromConfig(cfg)
	opts.Logger = logging.Discard()
	m := NewManager(opts)
	t.Cleanup(m.CloseAll)
	return m
}

func TestSessionManager(t *testing.T) {
	content := testutil.NDJSON(30, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	url := testutil.WriteTempLog(t, t.TempDir(), content)

	m := newTestManager(t, 5)

	s, err := m.StartSession(Request{ResourceURL: url})
	require.NoError(t, err)
	assert.Equal(t, int64(256), s.Controller.ChunkSize())

	for i := 0; i < 100; i++ {
		snap, err := m.Snapshot(s.ID)
		require.NoError(t, err)
		if snap.State.Ended {
			break
		}
		_, err = m.Trigger(context.Background(), s.ID, ingest.EventNearEnd)
		require.NoError(t, err)
	}

	snap, err := m.Snapshot(s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, snap.ID)
	assert.Equal(t, models.IngestStatusEnded, snap.State.Status)
	assert.Equal(t, 30, snap.RecordCount)
	require.NotEmpty(t, snap.Buckets)
	assert.Equal(t, 8, snap.Buckets[0].Hour)
}

func TestSessionManager_RequestOverrides(t *testing.T) {
	m := newTestManager(t, 5)

	s, err := m.StartSession(Request{ResourceURL: "https://example.com/a.ndjson", ChunkSizeBytes: 42, TimestampField: "ts"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), s.Controller.ChunkSize())
	assert.Equal(t, "https://example.com/a.ndjson", s.Controller.Resource())

	_, err = m.StartSession(Request{})
	assert.Error(t, err)

	_, err = m.StartSession(Request{ResourceURL: "ftp://example.com/a"})
	assert.Error(t, err)

	_, err = m.StartSession(Request{ResourceURL: "https://example.com/a", Store: "redis"})
	assert.Error(t, err)

	assert.Equal(t, 1, m.Count())
}

func TestSessionManager_NotFound(t *testing.T) {
	m := newTestManager(t, 5)

	_, err := m.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Trigger(context.Background(), "missing", ingest.EventMount)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Delete("missing"), ErrNotFound)
	assert.False(t, m.TouchSession("missing"))
}

func TestSessionManager_EvictsLeastRecentlyUsed(t *testing.T) {
	m := newTestManager(t, 2)

	a, err := m.StartSession(Request{ResourceURL: "https://example.com/a"})
	require.NoError(t, err)
	b, err := m.StartSession(Request{ResourceURL: "https://example.com/b"})
	require.NoError(t, err)

	a.LastAccessed = time.Now().Add(-time.Hour)
	require.True(t, m.TouchSession(b.ID))

	c, err := m.StartSession(Request{ResourceURL: "https://example.com/c"})
	require.NoError(t, err)

	assert.Equal(t, 2, m.Count())
	_, err = m.Get(a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get(b.ID)
	assert.NoError(t, err)
	_, err = m.Get(c.ID)
	assert.NoError(t, err)
}

func TestSessionManager_CleanupOldSessions(t *testing.T) {
	m := newTestManager(t, 5)

	old, err := m.StartSession(Request{ResourceURL: "https://example.com/old"})
	require.NoError(t, err)
	fresh, err := m.StartSession(Request{ResourceURL: "https://example.com/fresh"})
	require.NoError(t, err)

	old.LastAccessed = time.Now().Add(-2 * time.Hour)

	removed := m.CleanupOldSessions(30 * time.Minute)
	assert.Equal(t, 1, removed)
	_, err = m.Get(old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get(fresh.ID)
	assert.NoError(t, err)
}

func TestSessionManager_TriggerAsync(t *testing.T) {
	url := testutil.WriteTempLog(t, t.TempDir(), testutil.NDJSON(3, time.Now()))
	m := newTestManager(t, 5)

	s, err := m.StartSession(Request{ResourceURL: url, ChunkSizeBytes: 4096})
	require.NoError(t, err)

	type result struct {
		ran bool
		err error
	}
	done := make(chan result, 1)
	m.TriggerAsync(s.ID, ingest.EventMount, func(ran bool, err error) {
		done <- result{ran, err}
	})

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.True(t, r.ran)
	case <-time.After(5 * time.Second):
		t.Fatal("mount trigger did not complete")
	}
	assert.Equal(t, 3, s.Controller.Len())
}

func TestSessionManager_List(t *testing.T) {
	m := newTestManager(t, 5)
	_, err := m.StartSession(Request{ResourceURL: "https://example.com/a"})
	require.NoError(t, err)
	_, err = m.StartSession(Request{ResourceURL: "https://example.com/b"})
	require.NoError(t, err)

	list := m.List()
	require.Len(t, list, 2)
	for _, snap := range list {
		assert.NotEmpty(t, snap.ID)
		assert.Equal(t, models.IngestStatusIdle, snap.State.Status)
	}
}

func TestShortID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"abc", "abc"},
		{"12345678", "12345678"},
		{"5f0c2a91-7e3b-4d2a-9c1e-0b6f3a2d8e47", "5f0c2a91"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ShortID(tt.in))
	}
}
