// Package ingest drives chunked ingestion of a remote NDJSON log.
//
// A Controller owns the cursor, the carry-over assembler, the record store and the
// hour aggregator of one session, and is their only writer. Each trigger runs at most
// one fetch, assemble, parse, append cycle; triggers arriving while a cycle is running
// are dropped.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/ndjson-viewer/backend/internal/aggregate"
	"github.com/ndjson-viewer/backend/internal/fetch"
	"github.com/ndjson-viewer/backend/internal/logging"
	"github.com/ndjson-viewer/backend/internal/models"
	"github.com/ndjson-viewer/backend/internal/parser"
	"github.com/ndjson-viewer/backend/internal/store"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds the per-session engine options.
type Config struct {
	Resource            string
	ChunkSize           int64
	TimestampField      string
	FetchTimeout        time.Duration // 0 = no deadline
	MaxFetchesPerSecond float64       // 0 = unlimited
	MaxFailuresKept     int           // 0 = keep none, counts are always kept
}

// Controller runs ingestion cycles for one resource.
type Controller struct {
	cfg       Config
	fetcher   fetch.RangeFetcher
	store     store.RecordStore
	parser    *parser.RecordParser
	assembler *parser.Assembler
	agg       *aggregate.Hourly
	limiter   *rate.Limiter
	flight    *semaphore.Weighted
	log       *log.Logger

	// mu guards everything below plus the assembler, aggregator and store appends.
	mu       sync.RWMutex
	cursor   Cursor
	stats    models.IngestStats
	failures []models.ParseFailure
}

// NewController creates a controller in the idle state at offset 0.
func NewController(cfg Config, fetcher fetch.RangeFetcher, st store.RecordStore, logger *log.Logger) (*Controller, error) {
	if cfg.Resource == "" {
		return nil, errors.New("resource url is required")
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if fetcher == nil || st == nil {
		return nil, errors.New("fetcher and store are required")
	}
	if cfg.TimestampField == "" {
		cfg.TimestampField = models.DefaultTimestampField
	}
	if logger == nil {
		logger = logging.New("ingest")
	}

	c := &Controller{
		cfg:       cfg,
		fetcher:   fetcher,
		store:     st,
		parser:    parser.NewRecordParser(cfg.TimestampField, logger),
		assembler: parser.NewAssembler(),
		agg:       aggregate.NewHourly(),
		flight:    semaphore.NewWeighted(1),
		log:       logger,
	}
	if cfg.MaxFetchesPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.MaxFetchesPerSecond), 1)
	}
	return c, nil
}

// Trigger maps a presentation event onto RequestMore.
func (c *Controller) Trigger(ctx context.Context, ev Event) (bool, error) {
	switch ev {
	case EventMount, EventNearEnd, EventRetry:
		c.log.Debugf("trigger %s for %s", ev, c.cfg.Resource)
		return c.RequestMore(ctx)
	default:
		return false, fmt.Errorf("unknown ingestion event %q", ev)
	}
}

// RequestMore runs one ingestion cycle. It reports false without fetching when a
// cycle is already in flight or the stream has ended.
//
// Cancelling ctx does not abort a started fetch: the cycle runs to completion on a
// detached context bounded by the configured fetch timeout, and its records are
// committed. The returned error is the cycle's fetch or commit error.
func (c *Controller) RequestMore(ctx context.Context) (bool, error) {
	if !c.flight.TryAcquire(1) {
		c.log.Debugf("dropping trigger for %s: cycle in flight", c.cfg.Resource)
		return false, nil
	}
	defer c.flight.Release(1)

	c.mu.Lock()
	if !c.cursor.Begin() {
		c.mu.Unlock()
		return false, nil
	}
	offset := c.cursor.Offset
	c.mu.Unlock()

	cycleCtx := context.WithoutCancel(ctx)
	if c.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(cycleCtx, c.cfg.FetchTimeout)
		defer cancel()
	}

	end := offset + c.cfg.ChunkSize - 1
	if c.limiter != nil {
		if err := c.limiter.Wait(cycleCtx); err != nil {
			return true, c.fail(offset, &fetch.FetchError{
				Kind:     fetch.KindTransport,
				Resource: c.cfg.Resource,
				Start:    offset,
				End:      end,
				Reason:   "waiting for fetch slot",
				Err:      err,
			})
		}
	}

	raw, err := c.fetcher.Fetch(cycleCtx, c.cfg.Resource, offset, end)
	if err != nil {
		return true, c.fail(offset, err)
	}

	return true, c.commit(cycleCtx, offset, raw)
}

func (c *Controller) commit(ctx context.Context, offset int64, raw []byte) error {
	ended := int64(len(raw)) < c.cfg.ChunkSize

	c.mu.Lock()
	defer c.mu.Unlock()

	pending := c.assembler.Pending()
	lines := c.assembler.Push(raw)
	if ended {
		if tail := c.assembler.Flush(); tail != "" {
			lines = append(lines, tail)
		}
	}

	res := c.parser.ParseBatch(lines, offset)

	if err := c.store.Append(ctx, res.Records); err != nil {
		c.assembler.Restore(pending)
		err = fmt.Errorf("storing records: %w", err)
		c.cursor.Fail(err)
		c.log.Errorf("commit at offset %d failed: %v", offset, err)
		return err
	}

	c.agg.Add(res.Records)
	c.keepFailures(res.Failures)
	c.cursor.Advance(c.cfg.ChunkSize, ended)

	c.stats.Chunks++
	c.stats.BytesFetched += int64(len(raw))
	c.stats.Records += len(res.Records)
	c.stats.ParseFailures += len(res.Failures)
	c.stats.MissingTime += res.MissingTime

	c.log.Infof("chunk at offset %d: %d bytes, %d records, %d parse failures, %d without time",
		offset, len(raw), len(res.Records), len(res.Failures), res.MissingTime)
	if ended {
		c.log.Infof("end of %s reached after %d bytes, %d records", c.cfg.Resource, c.stats.BytesFetched, c.stats.Records)
	}
	return nil
}

func (c *Controller) fail(offset int64, err error) error {
	c.mu.Lock()
	c.cursor.Fail(err)
	c.mu.Unlock()

	c.log.Errorf("fetch at offset %d failed: %v", offset, err)
	return err
}

// keepFailures retains at most MaxFailuresKept of the most recent failures.
func (c *Controller) keepFailures(fs []models.ParseFailure) {
	limit := c.cfg.MaxFailuresKept
	if limit <= 0 || len(fs) == 0 {
		return
	}
	c.failures = append(c.failures, fs...)
	if over := len(c.failures) - limit; over > 0 {
		c.failures = append(c.failures[:0:0], c.failures[over:]...)
	}
}

// Resource returns the ingested resource URL.
func (c *Controller) Resource() string {
	return c.cfg.Resource
}

// ChunkSize returns the fetch stride.
func (c *Controller) ChunkSize() int64 {
	return c.cfg.ChunkSize
}

// State returns the cursor snapshot.
func (c *Controller) State() models.IngestState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cursor.State()
}

// Stats returns processing counters.
func (c *Controller) Stats() models.IngestStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Len returns the number of stored records.
func (c *Controller) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Len()
}

// Records returns stored records [start, end) in arrival order.
func (c *Controller) Records(ctx context.Context, start, end int) ([]*models.LogRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Range(ctx, start, end)
}

// Buckets returns the hour histogram in first-seen order.
func (c *Controller) Buckets() []models.HourBucket {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.agg.Buckets()
}

// ErrNoStoreBuckets is returned by StoredBuckets when the store cannot aggregate.
var ErrNoStoreBuckets = errors.New("record store does not compute buckets")

type hourBucketer interface {
	HourBuckets(ctx context.Context) ([]models.HourBucket, int, error)
}

// StoredBuckets recomputes the histogram inside the record store, for stores that
// support it. The result matches Buckets.
func (c *Controller) StoredBuckets(ctx context.Context) ([]models.HourBucket, int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hb, ok := c.store.(hourBucketer)
	if !ok {
		return nil, 0, ErrNoStoreBuckets
	}
	return hb.HourBuckets(ctx)
}

// Unknown returns how many stored records had no usable timestamp.
func (c *Controller) Unknown() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.agg.Unknown()
}

// Failures returns the retained parse failures, oldest first.
func (c *Controller) Failures() []models.ParseFailure {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.ParseFailure, len(c.failures))
	copy(out, c.failures)
	return out
}

// Snapshot returns a consistent view of state, counters and buckets.
func (c *Controller) Snapshot() models.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return models.Snapshot{
		Resource:    c.cfg.Resource,
		ChunkSize:   c.cfg.ChunkSize,
		State:       c.cursor.State(),
		Stats:       c.stats,
		RecordCount: c.store.Len(),
		Buckets:     c.agg.Buckets(),
		UnknownTime: c.agg.Unknown(),
	}
}

// Close releases the record store.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Close()
}
