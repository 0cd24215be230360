package aggregate

import (
	"math/rand"
	"testing"
	"time"

	"github.com/ndjson-viewer/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(ts string) *models.LogRecord {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	return models.NewLogRecord("", map[string]any{"_time": ts}, t, true)
}

func TestAggregate_FirstSeenOrder(t *testing.T) {
	records := []*models.LogRecord{
		rec("2024-09-30T05:00:00Z"),
		rec("2024-09-30T05:30:00Z"),
		rec("2024-09-30T06:00:00Z"),
		rec("2024-09-30T07:00:00Z"),
		rec("2024-09-30T07:30:00Z"),
	}

	got := Aggregate(records)

	require.Len(t, got, 3)
	want := []struct {
		date  string
		hour  int
		count int
	}{
		{"2024-09-30", 5, 2},
		{"2024-09-30", 6, 1},
		{"2024-09-30", 7, 2},
	}
	for i, w := range want {
		assert.Equal(t, w.date, got[i].Date)
		assert.Equal(t, w.hour, got[i].Hour)
		assert.Equal(t, w.count, got[i].Count)
	}
	assert.Equal(t, "2024-09-30 5:00", got[0].Label())
	assert.Equal(t, time.Date(2024, 9, 30, 5, 0, 0, 0, time.UTC), got[0].Start)
}

func TestAggregate_Empty(t *testing.T) {
	got := Aggregate(nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAggregate_NotChronological(t *testing.T) {
	records := []*models.LogRecord{
		rec("2024-09-30T07:10:00Z"),
		rec("2024-09-30T05:00:00Z"),
		rec("2024-09-30T07:20:00Z"),
	}

	got := Aggregate(records)
	require.Len(t, got, 2)
	assert.Equal(t, 7, got[0].Hour)
	assert.Equal(t, 5, got[1].Hour)

	sorted := Chronological(got)
	assert.Equal(t, 5, sorted[0].Hour)
	assert.Equal(t, 7, sorted[1].Hour)
	assert.Equal(t, 7, got[0].Hour, "Chronological must not reorder its input")
}

func TestAggregate_UTCKeys(t *testing.T) {
	// 23:30 at -02:00 is 01:30 UTC on the next day.
	ts, err := time.Parse(time.RFC3339, "2024-09-30T23:30:00-02:00")
	require.NoError(t, err)

	got := Aggregate([]*models.LogRecord{models.NewLogRecord("", nil, ts, true)})
	require.Len(t, got, 1)
	assert.Equal(t, "2024-10-01", got[0].Date)
	assert.Equal(t, 1, got[0].Hour)
}

func TestHourly_UnknownTime(t *testing.T) {
	h := NewHourly()
	h.Add([]*models.LogRecord{
		rec("2024-09-30T05:00:00Z"),
		models.NewLogRecord(`{"msg":"x"}`, map[string]any{"msg": "x"}, time.Time{}, false),
		nil,
	})

	assert.Equal(t, 2, h.Unknown())
	assert.Equal(t, 1, h.Total())
	assert.Len(t, h.Buckets(), 1)
}

func TestHourly_IncrementalMatchesFull(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	base := time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC)

	records := make([]*models.LogRecord, 500)
	for i := range records {
		ts := base.Add(time.Duration(rng.Intn(72*60)) * time.Minute)
		records[i] = models.NewLogRecord("", nil, ts, true)
	}

	h := NewHourly()
	for i := 0; i < len(records); i += 37 {
		end := min(i+37, len(records))
		h.Add(records[i:end])
	}

	assert.Equal(t, Aggregate(records), h.Buckets())
	assert.Equal(t, len(records), h.Total())
}

func TestHourly_Reset(t *testing.T) {
	h := NewHourly()
	h.Add([]*models.LogRecord{rec("2024-09-30T05:00:00Z"), models.NewLogRecord("", nil, time.Time{}, false)})
	h.Reset()

	assert.Empty(t, h.Buckets())
	assert.Zero(t, h.Unknown())
}

func TestMaxCount(t *testing.T) {
	assert.Zero(t, MaxCount(nil))
	assert.Equal(t, 3, MaxCount([]models.HourBucket{{Count: 1}, {Count: 3}, {Count: 2}}))
}
