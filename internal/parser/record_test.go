package parser

import (
	"testing"
	"time"

	"github.com/ndjson-viewer/backend/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordParser_Parse(t *testing.T) {
	p := NewRecordParser("", logging.Discard())

	rec, err := p.Parse(`{"_time":"2024-01-01T12:00:00Z","event":"Test event","n":3,"ok":true,"tags":["a"],"ctx":{"k":null}}`)
	require.NoError(t, err)

	assert.True(t, rec.HasTime)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), rec.Time)
	assert.Equal(t, "Test event", rec.Fields["event"])
	assert.Equal(t, float64(3), rec.Fields["n"])
	assert.Equal(t, true, rec.Fields["ok"])
	assert.Equal(t, []any{"a"}, rec.Fields["tags"])
	assert.Equal(t, map[string]any{"k": nil}, rec.Fields["ctx"])
}

func TestRecordParser_MissingTimestamp(t *testing.T) {
	p := NewRecordParser("_time", logging.Discard())

	for _, line := range []string{`{"msg":"no time"}`, `{"_time":"yesterday"}`, `{"_time":null}`} {
		rec, err := p.Parse(line)
		require.NoError(t, err, line)
		assert.False(t, rec.HasTime, line)
		assert.True(t, rec.Time.IsZero(), line)
	}
}

func TestRecordParser_ZeroInstantIsAValidTime(t *testing.T) {
	p := NewRecordParser("_time", logging.Discard())

	rec, err := p.Parse(`{"_time":"0001-01-01T00:00:00Z"}`)
	require.NoError(t, err)
	assert.True(t, rec.HasTime)
	assert.True(t, rec.Time.IsZero())
}

func TestRecordParser_CustomField(t *testing.T) {
	p := NewRecordParser("ts", logging.Discard())

	rec, err := p.Parse(`{"ts":1727672400,"_time":"ignored"}`)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 9, 30, 5, 0, 0, 0, time.UTC), rec.Time)
}

func TestRecordParser_Rejects(t *testing.T) {
	p := NewRecordParser("", logging.Discard())

	_, err := p.Parse(`{"_time": "2024-01-01T00:00:00Z"`)
	assert.Error(t, err)

	_, err = p.Parse(`[1,2,3]`)
	assert.ErrorIs(t, err, ErrNotObject)

	_, err = p.Parse(`"just a string"`)
	assert.ErrorIs(t, err, ErrNotObject)
}

func TestRecordParser_ParseBatchIsolatesFailures(t *testing.T) {
	p := NewRecordParser("", logging.Discard())
	lines := []string{
		`{"_time":"2024-09-30T05:00:00Z","msg":"ok"}`,
		`{"_time": broken`,
		`{"msg":"no time"}`,
	}

	res := p.ParseBatch(lines, 20000)

	require.Len(t, res.Records, 2)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 1, res.MissingTime)
	assert.Equal(t, int64(20000), res.Failures[0].Offset)
	assert.Equal(t, 1, res.Failures[0].Line)
	assert.Equal(t, `{"_time": broken`, res.Failures[0].Content)
	assert.NotEmpty(t, res.Failures[0].Reason)
	assert.Equal(t, "ok", res.Records[0].Fields["msg"])
}

func TestRecordParser_RawIsKept(t *testing.T) {
	p := NewRecordParser("", logging.Discard())
	line := `{"_time":"2024-09-30T05:00:00Z","msg":"ok"}`

	rec, err := p.Parse(line)
	require.NoError(t, err)
	assert.Equal(t, line, rec.Raw)
}
