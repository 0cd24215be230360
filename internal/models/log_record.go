// Package models contains domain types for the NDJSON log stream viewer.
package models

import "time"

// DefaultTimestampField is the record field holding the event time.
const DefaultTimestampField = "_time"

// LogRecord is one parsed NDJSON log line.
// Records are immutable once parsed; the store and the aggregator share the same pointer.
type LogRecord struct {
	Fields  map[string]any `json:"fields" msgpack:"fields"`
	Raw     string         `json:"-" msgpack:"-"`
	Time    time.Time      `json:"time,omitempty" msgpack:"time,omitempty"`
	HasTime bool           `json:"hasTime" msgpack:"hasTime"`
}

// NewLogRecord builds a record. hasTime false marks the record as missing its
// timestamp and ts is ignored.
func NewLogRecord(raw string, fields map[string]any, ts time.Time, hasTime bool) *LogRecord {
	r := &LogRecord{
		Fields: fields,
		Raw:    raw,
	}
	if hasTime {
		r.Time = ts.UTC()
		r.HasTime = true
	}
	return r
}
