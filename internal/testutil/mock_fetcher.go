// mock_fetcher.go - In-memory range fetcher and range server for tests
package testutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ndjson-viewer/backend/internal/fetch"
)

// FetchCall records one Fetch invocation.
type FetchCall struct {
	Resource string
	Start    int64
	End      int64
}

// MockFetcher serves byte ranges of an in-memory payload.
type MockFetcher struct {
	mu       sync.Mutex
	content  []byte
	calls    []FetchCall
	failures []error
	gate     chan struct{}
	started  chan struct{}
}

// NewMockFetcher creates a fetcher over content.
func NewMockFetcher(content []byte) *MockFetcher {
	return &MockFetcher{content: content}
}

func (m *MockFetcher) Fetch(ctx context.Context, resource string, start, endInclusive int64) ([]byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, FetchCall{Resource: resource, Start: start, End: endInclusive})
	gate, started := m.gate, m.started
	var failure error
	if len(m.failures) > 0 {
		failure = m.failures[0]
		m.failures = m.failures[1:]
	}
	m.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failure != nil {
		return nil, failure
	}

	if start < 0 || endInclusive < start {
		return nil, &fetch.FetchError{Kind: fetch.KindInvalidRange, Resource: resource, Start: start, End: endInclusive}
	}
	n := int64(len(m.content))
	if start >= n {
		return []byte{}, nil
	}
	end := endInclusive + 1
	if end > n {
		end = n
	}
	return bytes.Clone(m.content[start:end]), nil
}

var _ fetch.RangeFetcher = (*MockFetcher)(nil)

// Test Helper Methods

// FailNext makes the next Fetch calls return errs in order.
func (m *MockFetcher) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// Block holds every Fetch until the returned release func is called. The started
// channel receives once per Fetch that reaches the gate.
func (m *MockFetcher) Block() (started <-chan struct{}, release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gate := make(chan struct{})
	ch := make(chan struct{}, 16)
	m.gate, m.started = gate, ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			m.gate, m.started = nil, nil
			m.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns the recorded Fetch calls.
func (m *MockFetcher) Calls() []FetchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]FetchCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// RangeServer serves content over HTTP with Range support and counts requests.
type RangeServer struct {
	*httptest.Server
	requests atomic.Int64
}

// NewRangeServer starts a server for content; it is closed with the test.
func NewRangeServer(t testing.TB, content []byte) *RangeServer {
	t.Helper()
	rs := &RangeServer{}
	modTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.requests.Add(1)
		http.ServeContent(w, r, "log.ndjson", modTime, bytes.NewReader(content))
	}))
	t.Cleanup(rs.Close)
	return rs
}

// Requests returns how many requests the server has handled.
func (rs *RangeServer) Requests() int64 {
	return rs.requests.Load()
}

// WriteTempLog writes content to a file in dir and returns its file:// URL.
func WriteTempLog(t testing.TB, dir string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, fmt.Sprintf("log-%d.ndjson", time.Now().UnixNano()))
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write test log: %v", err)
	}
	return "file://" + filepath.ToSlash(path)
}

// NDJSON builds n newline-terminated records one minute apart starting at base.
func NDJSON(n int, base time.Time) []byte {
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		ts := base.Add(time.Duration(i) * time.Minute).UTC().Format(time.RFC3339Nano)
		fmt.Fprintf(&buf, "{\"_time\":%q,\"seq\":%d,\"msg\":\"event number %d\"}\n", ts, i, i)
	}
	return buf.Bytes()
}

// ErrInjected is a generic failure for tests.
var ErrInjected = errors.New("injected failure")
