// Package parser turns raw NDJSON chunks into log records.
package parser

import (
	"errors"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/ndjson-viewer/backend/internal/logging"
	"github.com/ndjson-viewer/backend/internal/models"
	"github.com/valyala/fastjson"
)

// ErrNotObject is returned for lines that are valid JSON but not an object.
var ErrNotObject = errors.New("record is not a JSON object")

// maxFailureContent bounds how much of a bad line is kept in a ParseFailure.
const maxFailureContent = 512

// RecordParser parses NDJSON lines into LogRecords. It is safe for concurrent use.
type RecordParser struct {
	timestampField string
	pool           fastjson.ParserPool
	keys           *StringIntern
	log            *log.Logger
}

// NewRecordParser creates a parser reading event time from timestampField.
func NewRecordParser(timestampField string, logger *log.Logger) *RecordParser {
	if timestampField == "" {
		timestampField = models.DefaultTimestampField
	}
	if logger == nil {
		logger = logging.New("parser")
	}
	return &RecordParser{
		timestampField: timestampField,
		keys:           NewStringIntern(MaxInternedKeys),
		log:            logger,
	}
}

// Parse parses one line. A record whose timestamp is missing or unreadable is still
// returned, with HasTime false.
func (p *RecordParser) Parse(line string) (*models.LogRecord, error) {
	jp := p.pool.Get()
	defer p.pool.Put(jp)

	v, err := jp.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if v.Type() != fastjson.TypeObject {
		return nil, ErrNotObject
	}

	obj, _ := v.Object()
	fields := p.object(obj)

	var (
		ts      time.Time
		hasTime bool
	)
	if raw, ok := fields[p.timestampField]; ok {
		if parsed, err := ParseTimestamp(raw); err == nil {
			ts, hasTime = parsed, true
		}
	}

	return models.NewLogRecord(line, fields, ts, hasTime), nil
}

// BatchResult is the outcome of parsing one batch of lines.
type BatchResult struct {
	Records     []*models.LogRecord
	Failures    []models.ParseFailure
	MissingTime int
}

// ParseBatch parses every line, isolating failures so one bad line never drops the rest.
// offset identifies the chunk the lines came from and is copied into each failure.
func (p *RecordParser) ParseBatch(lines []string, offset int64) BatchResult {
	res := BatchResult{
		Records: make([]*models.LogRecord, 0, len(lines)),
	}

	for i, line := range lines {
		rec, err := p.Parse(line)
		if err != nil {
			p.log.Debugf("skipping unparseable line %d at offset %d: %v", i, offset, err)
			res.Failures = append(res.Failures, models.ParseFailure{
				Offset:  offset,
				Line:    i,
				Content: truncate(line, maxFailureContent),
				Reason:  err.Error(),
			})
			continue
		}
		if !rec.HasTime {
			res.MissingTime++
		}
		res.Records = append(res.Records, rec)
	}

	return res
}

func (p *RecordParser) object(obj *fastjson.Object) map[string]any {
	m := make(map[string]any, obj.Len())
	obj.Visit(func(key []byte, val *fastjson.Value) {
		m[p.keys.InternBytes(key)] = p.toNative(val)
	})
	return m
}

// toNative converts a fastjson value into plain Go values, matching what
// encoding/json produces for interface{} targets. Object keys are interned.
func (p *RecordParser) toNative(v *fastjson.Value) any {
	switch v.Type() {
	case fastjson.TypeObject:
		obj, _ := v.Object()
		return p.object(obj)
	case fastjson.TypeArray:
		arr, _ := v.Array()
		out := make([]any, len(arr))
		for i, item := range arr {
			out[i] = p.toNative(item)
		}
		return out
	case fastjson.TypeString:
		b, _ := v.StringBytes()
		return string(b)
	case fastjson.TypeNumber:
		f, _ := v.Float64()
		return f
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	default:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
