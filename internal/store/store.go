// Package store holds the append-only record sequence of an ingestion session.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/labstack/gommon/log"
	"github.com/ndjson-viewer/backend/internal/models"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("record store closed")

// RecordStore is an ordered, append-only sequence of records. Insertion order is
// arrival order. Stores never shrink or reorder.
type RecordStore interface {
	Append(ctx context.Context, records []*models.LogRecord) error
	Len() int
	// Range returns records [start, end), clamped to the stored length.
	Range(ctx context.Context, start, end int) ([]*models.LogRecord, error)
	Close() error
}

// Kind names a store implementation in configuration.
type Kind string

const (
	KindMemory Kind = "memory"
	KindDuckDB Kind = "duckdb"
)

// Options configures New.
type Options struct {
	TempDir     string
	SessionID   string
	Threads     int
	MemoryLimit string
	Logger      *log.Logger
}

// New builds a store of the given kind. An empty kind means memory.
func New(kind Kind, opts Options) (RecordStore, error) {
	switch kind {
	case "", KindMemory:
		return NewMemoryStore(), nil
	case KindDuckDB:
		return NewDuckStore(opts)
	default:
		return nil, fmt.Errorf("unknown store kind %q", kind)
	}
}

// clampRange bounds [start, end) to [0, n).
func clampRange(start, end, n int) (int, int) {
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	if start > end {
		start = end
	}
	return start, end
}
