package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/labstack/gommon/log"
	"github.com/marcboeker/go-duckdb"
	"github.com/ndjson-viewer/backend/internal/logging"
	"github.com/ndjson-viewer/backend/internal/models"
)

// DuckStore keeps a session's records in a temporary DuckDB file so large streams do
// not have to fit in memory. The file is removed on Close; nothing outlives the session.
type DuckStore struct {
	db     *sql.DB
	dbPath string
	log    *log.Logger

	mu     sync.RWMutex
	count  int
	closed bool
}

// NewDuckStore creates session_<id>.duckdb in opts.TempDir.
func NewDuckStore(opts Options) (*DuckStore, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.New("store")
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if err := os.MkdirAll(opts.TempDir, 0755); err != nil {
		return nil, fmt.Errorf("creating temp directory: %w", err)
	}
	threads := opts.Threads
	if threads <= 0 {
		threads = 4
	}
	memLimit := opts.MemoryLimit
	if memLimit == "" {
		memLimit = "1GB"
	}

	dbPath := filepath.Join(opts.TempDir, fmt.Sprintf("session_%s.duckdb", opts.SessionID))
	// A stale file from a crashed run would otherwise be reopened with old rows.
	os.Remove(dbPath)

	logger.Debugf("creating database at %s", dbPath)
	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			fmt.Sprintf("PRAGMA memory_limit='%s'", memLimit),
			fmt.Sprintf("PRAGMA threads=%d", threads),
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return fmt.Errorf("%s: %w", pragma, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	_, err = db.Exec(`
		CREATE TABLE records (
			id    BIGINT PRIMARY KEY,
			ts_us BIGINT,
			raw   VARCHAR NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		os.Remove(dbPath)
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &DuckStore{
		db:     db,
		dbPath: dbPath,
		log:    logger,
	}, nil
}

// Append writes records with the native Appender in one flush.
func (ds *DuckStore) Append(ctx context.Context, records []*models.LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.closed {
		return ErrClosed
	}

	start := time.Now()
	conn, err := ds.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}

		appender, err := duckdb.NewAppenderFromConn(dConn, "", "records")
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer appender.Close()

		for i, r := range records {
			var ts any
			if r.HasTime {
				ts = r.Time.UnixMicro()
			}
			if err := appender.AppendRow(int64(ds.count+i), ts, r.Raw); err != nil {
				return fmt.Errorf("failed to append row %d: %w", i, err)
			}
		}
		return appender.Flush()
	})
	if err != nil {
		return fmt.Errorf("appender error: %w", err)
	}

	ds.count += len(records)
	ds.log.Debugf("appended %d records in %v (total %d)", len(records), time.Since(start), ds.count)
	return nil
}

// Len returns the number of stored records.
func (ds *DuckStore) Len() int {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.count
}

// Range reads records [start, end) back, decoding each raw line again.
func (ds *DuckStore) Range(ctx context.Context, start, end int) ([]*models.LogRecord, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	if ds.closed {
		return nil, ErrClosed
	}

	start, end = clampRange(start, end, ds.count)
	if start == end {
		return []*models.LogRecord{}, nil
	}

	rows, err := ds.db.QueryContext(ctx,
		`SELECT ts_us, raw FROM records WHERE id >= ? AND id < ? ORDER BY id`, start, end)
	if err != nil {
		return nil, fmt.Errorf("range query failed: %w", err)
	}
	defer rows.Close()

	out := make([]*models.LogRecord, 0, end-start)
	for rows.Next() {
		var tsUs sql.NullInt64
		var raw string
		if err := rows.Scan(&tsUs, &raw); err != nil {
			return nil, err
		}

		var fields map[string]any
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return nil, fmt.Errorf("decoding stored record: %w", err)
		}

		var ts time.Time
		if tsUs.Valid {
			ts = time.UnixMicro(tsUs.Int64)
		}
		out = append(out, models.NewLogRecord(raw, fields, ts, tsUs.Valid))
	}
	return out, rows.Err()
}

// HourBuckets computes the hour histogram in SQL. The result matches the in-memory
// aggregator: UTC hours, first-seen order, records without a time excluded and
// returned as the unknown count.
func (ds *DuckStore) HourBuckets(ctx context.Context) ([]models.HourBucket, int, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	if ds.closed {
		return nil, 0, ErrClosed
	}

	rows, err := ds.db.QueryContext(ctx, `
		SELECT CAST(floor(ts_us / 3600000000.0) AS BIGINT) AS hour_idx,
		       COUNT(*) AS n,
		       MIN(id) AS first_id
		FROM records
		WHERE ts_us IS NOT NULL
		GROUP BY hour_idx
		ORDER BY first_id
	`)
	if err != nil {
		return nil, 0, fmt.Errorf("bucket query failed: %w", err)
	}
	defer rows.Close()

	buckets := make([]models.HourBucket, 0)
	for rows.Next() {
		var hourIdx, firstID int64
		var n int
		if err := rows.Scan(&hourIdx, &n, &firstID); err != nil {
			return nil, 0, err
		}
		key, start := models.KeyFor(time.Unix(hourIdx*3600, 0))
		buckets = append(buckets, models.HourBucket{
			Date:  key.Date,
			Hour:  key.Hour,
			Count: n,
			Start: start,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var unknown int
	if err := ds.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE ts_us IS NULL`).Scan(&unknown); err != nil {
		return nil, 0, fmt.Errorf("unknown count query failed: %w", err)
	}

	return buckets, unknown, nil
}

// Close closes the database and removes the temp file.
func (ds *DuckStore) Close() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.closed {
		return nil
	}
	ds.closed = true

	var err error
	if ds.db != nil {
		err = ds.db.Close()
	}
	os.Remove(ds.dbPath)
	os.Remove(ds.dbPath + ".wal")
	return err
}
