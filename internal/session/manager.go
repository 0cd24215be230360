// Package session keeps independent ingestion sessions, one controller per resource.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	"github.com/ndjson-viewer/backend/internal/config"
	"github.com/ndjson-viewer/backend/internal/fetch"
	"github.com/ndjson-viewer/backend/internal/ingest"
	"github.com/ndjson-viewer/backend/internal/logging"
	"github.com/ndjson-viewer/backend/internal/models"
	"github.com/ndjson-viewer/backend/internal/store"
)

// DefaultMaxSessions limits concurrent sessions to bound memory and temp files
const DefaultMaxSessions = 10

var (
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("session not found")
	// ErrTooMany is returned when the session cap is reached and nothing can be evicted.
	ErrTooMany = errors.New("too many active sessions")
)

// Options configures a Manager.
type Options struct {
	MaxSessions int
	Ingest      config.IngestConfig
	Storage     config.StorageConfig
	Client      *http.Client
	Logger      *log.Logger
}

// OptionsFromConfig derives manager options from the application config.
func OptionsFromConfig(cfg *config.AppConfig) Options {
	return Options{
		MaxSessions: cfg.Sessions.MaxSessions,
		Ingest:      cfg.Ingest,
		Storage:     cfg.Storage,
	}
}

// Request describes a new session. Zero fields fall back to the configured defaults.
type Request struct {
	ResourceURL    string `json:"resourceUrl"`
	ChunkSizeBytes int64  `json:"chunkSizeBytes"`
	TimestampField string `json:"timestampField"`
	Store          string `json:"store"`
}

// SessionState holds one controller and its bookkeeping.
type SessionState struct {
	ID           string
	Controller   *ingest.Controller
	CreatedAt    time.Time
	LastAccessed time.Time // Last time the session was accessed (for keep-alive)
}

// Manager handles active ingestion sessions.
type Manager struct {
	sessions map[string]*SessionState
	mu       sync.RWMutex
	opts     Options
	log      *log.Logger
}

// NewManager creates a session manager.
func NewManager(opts Options) *Manager {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.Logger == nil {
		opts.Logger = logging.New("session")
	}
	return &Manager{
		sessions: make(map[string]*SessionState),
		opts:     opts,
		log:      opts.Logger,
	}
}

// StartSession builds a controller for the requested resource. No bytes are fetched
// until the first trigger.
func (m *Manager) StartSession(req Request) (*SessionState, error) {
	cfg := m.ingestConfig(req)
	if cfg.Resource == "" {
		return nil, errors.New("resourceUrl is required")
	}

	if err := m.makeRoom(); err != nil {
		return nil, err
	}

	id := uuid.New().String()

	fetcher, err := fetch.New(cfg.Resource, fetch.Options{
		Client: m.opts.Client,
		Logger: logging.New("fetch"),
	})
	if err != nil {
		return nil, err
	}

	kind := store.Kind(req.Store)
	if kind == "" {
		kind = store.Kind(m.opts.Ingest.Store)
	}
	st, err := store.New(kind, store.Options{
		TempDir:     m.opts.Storage.TempDirectory,
		SessionID:   id,
		Threads:     m.opts.Storage.DuckDBThreads,
		MemoryLimit: m.opts.Storage.DuckDBMemoryLimit,
		Logger:      logging.New("store"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create record store: %w", err)
	}

	ctrl, err := ingest.NewController(cfg, fetcher, st, logging.New("ingest"))
	if err != nil {
		st.Close()
		return nil, err
	}

	now := time.Now()
	state := &SessionState{
		ID:           id,
		Controller:   ctrl,
		CreatedAt:    now,
		LastAccessed: now,
	}

	m.mu.Lock()
	m.sessions[id] = state
	m.mu.Unlock()

	m.log.Infof("[Session %s] created for %s (chunk=%d, store=%s)", ShortID(id), cfg.Resource, cfg.ChunkSize, kind)
	return state, nil
}

func (m *Manager) ingestConfig(req Request) ingest.Config {
	def := m.opts.Ingest
	cfg := ingest.Config{
		Resource:            req.ResourceURL,
		ChunkSize:           req.ChunkSizeBytes,
		TimestampField:      req.TimestampField,
		FetchTimeout:        def.FetchTimeout(),
		MaxFetchesPerSecond: def.MaxFetchesPerSecond,
		MaxFailuresKept:     def.MaxFailuresKept,
	}
	if cfg.Resource == "" {
		cfg.Resource = def.ResourceURL
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSizeBytes
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = config.DefaultChunkSize
	}
	if cfg.TimestampField == "" {
		cfg.TimestampField = def.TimestampField
	}
	return cfg
}

// makeRoom evicts the least recently used idle sessions once the cap is reached.
// Sessions with a cycle in flight are never evicted.
func (m *Manager) makeRoom() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) < m.opts.MaxSessions {
		return nil
	}

	candidates := make([]*SessionState, 0, len(m.sessions))
	for _, s := range m.sessions {
		if !s.Controller.State().InFlight {
			candidates = append(candidates, s)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LastAccessed.Before(candidates[j].LastAccessed)
	})

	toFree := len(m.sessions) - m.opts.MaxSessions + 1
	if len(candidates) < toFree {
		return ErrTooMany
	}
	for _, s := range candidates[:toFree] {
		m.closeLocked(s)
		m.log.Infof("[Manager] Evicted session %s to stay under %d sessions", ShortID(s.ID), m.opts.MaxSessions)
	}
	return nil
}

func (m *Manager) closeLocked(s *SessionState) {
	delete(m.sessions, s.ID)
	if err := s.Controller.Close(); err != nil {
		m.log.Warnf("[Session %s] closing store: %v", ShortID(s.ID), err)
	}
}

// Get returns a session and marks it accessed.
func (m *Manager) Get(id string) (*SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.LastAccessed = time.Now()
	return s, nil
}

// Snapshot returns the session's current view.
func (m *Manager) Snapshot(id string) (models.Snapshot, error) {
	s, err := m.Get(id)
	if err != nil {
		return models.Snapshot{}, err
	}
	snap := s.Controller.Snapshot()
	snap.ID = s.ID
	return snap, nil
}

// TouchSession updates the last accessed time, keeping the session alive.
func (m *Manager) TouchSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return false
	}
	s.LastAccessed = time.Now()
	return true
}

// Trigger runs one ingestion cycle for the session. It reports whether a cycle ran.
func (m *Manager) Trigger(ctx context.Context, id string, ev ingest.Event) (bool, error) {
	s, err := m.Get(id)
	if err != nil {
		return false, err
	}
	return s.Controller.Trigger(ctx, ev)
}

// TriggerAsync runs Trigger in the background. done, when non-nil, receives the outcome.
func (m *Manager) TriggerAsync(id string, ev ingest.Event, done func(ran bool, err error)) {
	go func() {
		var (
			ran bool
			err error
		)
		defer func() {
			if r := recover(); r != nil {
				m.log.Errorf("[Session %s] PANIC recovered in %s trigger: %v", ShortID(id), ev, r)
				err = fmt.Errorf("ingestion panicked: %v", r)
			}
			if done != nil {
				done(ran, err)
			}
		}()
		ran, err = m.Trigger(context.Background(), id, ev)
	}()
}

// Delete closes and removes a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	m.closeLocked(s)
	m.log.Infof("[Session %s] deleted", ShortID(id))
	return nil
}

// List returns snapshots of all sessions, newest first.
func (m *Manager) List() []models.Snapshot {
	m.mu.RLock()
	states := make([]*SessionState, 0, len(m.sessions))
	for _, s := range m.sessions {
		states = append(states, s)
	}
	m.mu.RUnlock()

	sort.Slice(states, func(i, j int) bool {
		return states[i].CreatedAt.After(states[j].CreatedAt)
	})

	out := make([]models.Snapshot, 0, len(states))
	for _, s := range states {
		snap := s.Controller.Snapshot()
		snap.ID = s.ID
		out = append(out, snap)
	}
	return out
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupOldSessions removes idle sessions not accessed within maxAge.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)

	removed := 0
	for _, s := range m.sessions {
		if s.Controller.State().InFlight {
			continue
		}
		if s.LastAccessed.Before(cutoff) {
			m.log.Infof("[Manager] Cleaned up aged session %s (last accessed: %s ago)",
				ShortID(s.ID), time.Since(s.LastAccessed).Round(time.Second))
			m.closeLocked(s)
			removed++
		}
	}
	return removed
}

// CloseAll closes every session, used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		m.closeLocked(s)
	}
}

// ShortID returns the first 8 characters of a session id for log prefixes.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
