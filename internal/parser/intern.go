package parser

import (
	"sync"
)

// MaxInternedKeys limits the key pool. Streams with unbounded key sets stop
// being interned past this size.
const MaxInternedKeys = 50000

// StringIntern deduplicates field names across records. NDJSON logs repeat the same
// handful of keys on every line, so records share one copy of each key.
type StringIntern struct {
	mu   sync.RWMutex
	pool map[string]string
	max  int
}

// NewStringIntern creates an interner holding at most max strings.
func NewStringIntern(max int) *StringIntern {
	if max <= 0 {
		max = MaxInternedKeys
	}
	return &StringIntern{
		pool: make(map[string]string, 64),
		max:  max,
	}
}

// InternBytes returns the pooled copy of b, storing it when there is room.
func (si *StringIntern) InternBytes(b []byte) string {
	// The map lookup with string(b) does not allocate.
	si.mu.RLock()
	if pooled, ok := si.pool[string(b)]; ok {
		si.mu.RUnlock()
		return pooled
	}
	full := len(si.pool) >= si.max
	si.mu.RUnlock()

	s := string(b)
	if full {
		return s
	}

	si.mu.Lock()
	defer si.mu.Unlock()
	if pooled, ok := si.pool[s]; ok {
		return pooled
	}
	if len(si.pool) >= si.max {
		return s
	}
	si.pool[s] = s
	return s
}

// Len returns the number of unique strings in the pool.
func (si *StringIntern) Len() int {
	si.mu.RLock()
	defer si.mu.RUnlock()
	return len(si.pool)
}
