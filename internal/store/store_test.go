package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ndjson-viewer/backend/internal/aggregate"
	"github.com/ndjson-viewer/backend/internal/logging"
	"github.com/ndjson-viewer/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRecords(n int, base time.Time) []*models.LogRecord {
	out := make([]*models.LogRecord, n)
	for i := range out {
		ts := base.Add(time.Duration(i*17) * time.Minute)
		raw := fmt.Sprintf(`{"_time":%q,"seq":%d}`, ts.Format(time.RFC3339), i)
		out[i] = models.NewLogRecord(raw, map[string]any{"_time": ts.Format(time.RFC3339), "seq": float64(i)}, ts, true)
	}
	return out
}

// storeContract runs the behaviour every RecordStore must share.
func storeContract(t *testing.T, s RecordStore) {
	ctx := context.Background()
	base := time.Date(2024, 9, 30, 5, 0, 0, 0, time.UTC)
	first := makeRecords(5, base)
	second := makeRecords(3, base.Add(24*time.Hour))

	require.NoError(t, s.Append(ctx, first))
	require.NoError(t, s.Append(ctx, second))
	require.NoError(t, s.Append(ctx, nil))
	assert.Equal(t, 8, s.Len())

	got, err := s.Range(ctx, 0, 100)
	require.NoError(t, err)
	require.Len(t, got, 8)
	for i, r := range append(first, second...) {
		assert.Equal(t, r.Raw, got[i].Raw, "record %d out of order", i)
	}

	got, err = s.Range(ctx, 4, 6)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first[4].Raw, got[0].Raw)
	assert.Equal(t, second[0].Raw, got[1].Raw)

	got, err = s.Range(ctx, 10, 20)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Append(ctx, first), ErrClosed)
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestMemoryStore_SharesRecords(t *testing.T) {
	s := NewMemoryStore()
	recs := makeRecords(2, time.Now())
	require.NoError(t, s.Append(context.Background(), recs))

	got, err := s.Range(context.Background(), 0, 2)
	require.NoError(t, err)
	assert.Same(t, recs[0], got[0])
}

func newTestDuckStore(t *testing.T) *DuckStore {
	t.Helper()
	s, err := NewDuckStore(Options{
		TempDir:   t.TempDir(),
		SessionID: "test_" + time.Now().Format("20060102_150405"),
		Threads:   1,
		Logger:    logging.Discard(),
	})
	require.NoError(t, err)
	return s
}

func TestDuckStore(t *testing.T) {
	storeContract(t, newTestDuckStore(t))
}

func TestDuckStore_RoundTrip(t *testing.T) {
	s := newTestDuckStore(t)
	defer s.Close()
	ctx := context.Background()

	ts := time.Date(2024, 9, 30, 5, 30, 0, 123456000, time.UTC)
	in := []*models.LogRecord{
		models.NewLogRecord(`{"_time":"x","msg":"hi","n":2}`, nil, ts, true),
		models.NewLogRecord(`{"msg":"no time"}`, nil, time.Time{}, false),
	}
	require.NoError(t, s.Append(ctx, in))

	out, err := s.Range(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.True(t, out[0].HasTime)
	assert.True(t, ts.Equal(out[0].Time))
	assert.Equal(t, "hi", out[0].Fields["msg"])
	assert.Equal(t, float64(2), out[0].Fields["n"])
	assert.False(t, out[1].HasTime)
}

func TestDuckStore_HourBucketsMatchAggregator(t *testing.T) {
	s := newTestDuckStore(t)
	defer s.Close()
	ctx := context.Background()

	base := time.Date(2024, 9, 30, 5, 0, 0, 0, time.UTC)
	// Out-of-order arrival to exercise first-seen ordering.
	recs := append(makeRecords(20, base.Add(6*time.Hour)), makeRecords(20, base)...)
	recs = append(recs, models.NewLogRecord(`{"msg":"x"}`, nil, time.Time{}, false))
	require.NoError(t, s.Append(ctx, recs))

	buckets, unknown, err := s.HourBuckets(ctx)
	require.NoError(t, err)

	h := aggregate.NewHourly()
	h.Add(recs)
	assert.Equal(t, h.Buckets(), buckets)
	assert.Equal(t, 1, unknown)
}

func TestDuckStore_CloseRemovesFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDuckStore(Options{TempDir: dir, SessionID: "gone", Logger: logging.Discard()})
	require.NoError(t, err)

	path := filepath.Join(dir, "session_gone.duckdb")
	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestNew(t *testing.T) {
	s, err := New("", Options{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = New("redis", Options{})
	assert.Error(t, err)
}
