package store

import (
	"context"
	"sync"

	"github.com/ndjson-viewer/backend/internal/models"
)

// MemoryStore keeps records in a slice.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*models.LogRecord
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make([]*models.LogRecord, 0, 1024),
	}
}

func (s *MemoryStore) Append(_ context.Context, records []*models.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.records = append(s.records, records...)
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Range returns a copy of the slice headers; records themselves are shared.
func (s *MemoryStore) Range(_ context.Context, start, end int) ([]*models.LogRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	start, end = clampRange(start, end, len(s.records))
	out := make([]*models.LogRecord, end-start)
	copy(out, s.records[start:end])
	return out, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.records = nil
	return nil
}
