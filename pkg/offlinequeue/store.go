// Package offlinequeue is the durable bounded FIFO backing the sync engine:
// queued events awaiting upload, per-bucket checkpoints, and the app
// category cache. All access to the underlying SQLite file is
// serialized through one writer goroutine, never thread-local connection
// handles; multi-statement writes run through pkg/database/uow so rollback
// and commit follow the same discipline as the rest of the module.
package offlinequeue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/betterqa-sync/agent-core/pkg/database"
	"github.com/betterqa-sync/agent-core/pkg/database/uow"
	"github.com/betterqa-sync/agent-core/pkg/observability"
	"github.com/betterqa-sync/agent-core/pkg/synctypes"
	"github.com/betterqa-sync/agent-core/pkg/vos"
)

const (
	// DefaultMaxSize is the maximum number of rows queued_events may hold.
	DefaultMaxSize = 50000
	// DefaultOverflow is how many oldest rows are dropped to make room when
	// an enqueue would exceed DefaultMaxSize.
	DefaultOverflow = 1000
	// NearCapacityThreshold is the CapacityPercent fraction at or above which
	// IsNearCapacity reports true.
	NearCapacityThreshold = 0.8
)

// ErrClosed is returned by any operation issued after Close.
var ErrClosed = errors.New("offlinequeue: store closed")

type request struct {
	fn   func(*sql.DB) (any, error)
	resp chan result
}

type result struct {
	val any
	err error
}

// Store is the offline queue's handle. Construct with Open.
type Store struct {
	db       *sql.DB
	o11y     observability.Observability
	maxSize  int
	overflow int

	reqCh  chan request
	doneCh chan struct{}

	depthGauge prometheus.Gauge
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithCapacity overrides DefaultMaxSize/DefaultOverflow.
func WithCapacity(maxSize, overflow int) Option {
	return func(s *Store) {
		s.maxSize = maxSize
		s.overflow = overflow
	}
}

// Open opens (creating and migrating if necessary) the SQLite file at path
// and starts the single writer goroutine.
func Open(ctx context.Context, path string, o11y observability.Observability, opts ...Option) (*Store, error) {
	if err := runMigrations(ctx, path, o11y); err != nil {
		return nil, err
	}

	// otelsql wraps the sqlite3 driver so every statement this store issues
	// shows up as a span under the caller's trace, without touching call
	// sites below that only know about *sql.DB.
	db, err := otelsql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000",
		otelsql.WithAttributes(semconv.DBSystemSqlite))
	if err != nil {
		return nil, fmt.Errorf("offlinequeue: open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{
		db:       db,
		o11y:     o11y,
		maxSize:  DefaultMaxSize,
		overflow: DefaultOverflow,
		reqCh:    make(chan request),
		doneCh:   make(chan struct{}),
		depthGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sync_agent",
			Subsystem: "offline_queue",
			Name:      "depth",
			Help:      "Number of events currently persisted in the offline queue.",
		}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.loop()
	return s, nil
}

func (s *Store) loop() {
	defer close(s.doneCh)
	for req := range s.reqCh {
		val, err := req.fn(s.db)
		req.resp <- result{val: val, err: err}
	}
}

func (s *Store) do(fn func(*sql.DB) (any, error)) (any, error) {
	resp := make(chan result, 1)
	select {
	case s.reqCh <- request{fn: fn, resp: resp}:
	case <-s.doneCh:
		return nil, ErrClosed
	}
	r := <-resp
	return r.val, r.err
}

// Close stops the writer goroutine and closes the underlying database.
func (s *Store) Close() error {
	close(s.reqCh)
	<-s.doneCh
	return s.db.Close()
}

// Describe/Collect implement prometheus.Collector so Store can be
// registered directly with a registry; Size refreshes depthGauge as a side
// effect of being called, and callers that want it continuously accurate
// should poll Size periodically (the orchestrator's sync job does, through
// IsNearCapacity, on cycles with no pause, private mode, network pause or
// error).
func (s *Store) Describe(ch chan<- *prometheus.Desc) {
	s.depthGauge.Describe(ch)
}

func (s *Store) Collect(ch chan<- prometheus.Metric) {
	s.depthGauge.Collect(ch)
}

// Enqueue inserts events, truncating to the newest maxSize if the batch
// itself exceeds capacity, and evicting the oldest overflow rows first if
// adding the batch would exceed maxSize. Returns the number of rows
// actually inserted.
func (s *Store) Enqueue(ctx context.Context, events []synctypes.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	if len(events) > s.maxSize {
		dropped := len(events) - s.maxSize
		s.o11y.Logger().Warn(ctx, "offline queue batch exceeds capacity, truncating to newest",
			observability.Int("dropped", dropped), observability.Int("capacity", s.maxSize))
		events = events[dropped:]
	}

	v, err := s.do(func(db *sql.DB) (any, error) {
		var inserted int
		err := uow.NewUnitOfWork(db).Do(ctx, func(ctx context.Context, tx database.DBTX) error {
			var current int
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM queued_events").Scan(&current); err != nil {
				return err
			}

			if current+len(events) > s.maxSize {
				excess := current + len(events) - s.maxSize
				if excess < s.overflow {
					excess = s.overflow
				}
				if _, err := tx.ExecContext(ctx,
					`DELETE FROM queued_events WHERE row_id IN (
						SELECT row_id FROM queued_events ORDER BY row_id ASC LIMIT ?
					)`, excess); err != nil {
					return err
				}
			}

			stmt, err := tx.PrepareContext(ctx,
				"INSERT INTO queued_events (event_blob, created_at, retry_count) VALUES (?, ?, 0)")
			if err != nil {
				return err
			}
			defer stmt.Close()

			now := time.Now().UTC()
			for _, ev := range events {
				blob, err := json.Marshal(ev)
				if err != nil {
					return fmt.Errorf("marshal event: %w", err)
				}
				if _, err := stmt.ExecContext(ctx, blob, now); err != nil {
					return err
				}
			}
			inserted = len(events)
			return nil
		})
		return inserted, err
	})
	if err != nil {
		return 0, fmt.Errorf("offlinequeue: enqueue: %w", err)
	}
	return v.(int), nil
}

// Dequeue returns up to n oldest queued events, by row_id.
func (s *Store) Dequeue(ctx context.Context, n int) ([]synctypes.QueuedEvent, error) {
	v, err := s.do(func(db *sql.DB) (any, error) {
		rows, err := db.QueryContext(ctx,
			"SELECT row_id, event_blob, created_at, retry_count FROM queued_events ORDER BY row_id ASC LIMIT ?", n)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []synctypes.QueuedEvent
		for rows.Next() {
			var qe synctypes.QueuedEvent
			if err := rows.Scan(&qe.RowID, &qe.EventBlob, &qe.CreatedAt, &qe.RetryCount); err != nil {
				return nil, err
			}
			out = append(out, qe)
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("offlinequeue: dequeue: %w", err)
	}
	if v == nil {
		return nil, nil
	}
	return v.([]synctypes.QueuedEvent), nil
}

// Remove deletes queued rows by id, on successful upload.
func (s *Store) Remove(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.do(func(db *sql.DB) (any, error) {
		return nil, execWithIDs(ctx, db, "DELETE FROM queued_events WHERE row_id IN", ids)
	})
	if err != nil {
		return fmt.Errorf("offlinequeue: remove: %w", err)
	}
	return nil
}

// IncrementRetry bumps retry_count for ids, on a failed redelivery attempt.
func (s *Store) IncrementRetry(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.do(func(db *sql.DB) (any, error) {
		return nil, execWithIDs(ctx, db, "UPDATE queued_events SET retry_count = retry_count + 1 WHERE row_id IN", ids)
	})
	if err != nil {
		return fmt.Errorf("offlinequeue: increment retry: %w", err)
	}
	return nil
}

// RemoveFailed deletes rows whose retry_count has reached maxRetries.
func (s *Store) RemoveFailed(ctx context.Context, maxRetries int) (int64, error) {
	v, err := s.do(func(db *sql.DB) (any, error) {
		res, err := db.ExecContext(ctx, "DELETE FROM queued_events WHERE retry_count >= ?", maxRetries)
		if err != nil {
			return int64(0), err
		}
		return res.RowsAffected()
	})
	if err != nil {
		return 0, fmt.Errorf("offlinequeue: remove failed: %w", err)
	}
	return v.(int64), nil
}

// ExpireOlderThan deletes rows created before the cutoff.
func (s *Store) ExpireOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age)
	v, err := s.do(func(db *sql.DB) (any, error) {
		res, err := db.ExecContext(ctx, "DELETE FROM queued_events WHERE created_at < ?", cutoff)
		if err != nil {
			return int64(0), err
		}
		return res.RowsAffected()
	})
	if err != nil {
		return 0, fmt.Errorf("offlinequeue: expire: %w", err)
	}
	return v.(int64), nil
}

// Size returns the current row count and refreshes the Prometheus depth
// gauge as a side effect.
func (s *Store) Size(ctx context.Context) (int, error) {
	v, err := s.do(func(db *sql.DB) (any, error) {
		var count int
		err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM queued_events").Scan(&count)
		return count, err
	})
	if err != nil {
		return 0, fmt.Errorf("offlinequeue: size: %w", err)
	}
	count := v.(int)
	s.depthGauge.Set(float64(count))
	return count, nil
}

// IsEmpty reports whether the queue currently holds no rows.
func (s *Store) IsEmpty(ctx context.Context) (bool, error) {
	n, err := s.Size(ctx)
	return n == 0, err
}

// CapacityPercent returns size()/maxSize as a fraction in [0,1].
func (s *Store) CapacityPercent(ctx context.Context) (float64, error) {
	n, err := s.Size(ctx)
	if err != nil {
		return 0, err
	}
	return float64(n) / float64(s.maxSize), nil
}

// IsNearCapacity reports whether CapacityPercent has reached NearCapacityThreshold.
func (s *Store) IsNearCapacity(ctx context.Context) (bool, error) {
	pct, err := s.CapacityPercent(ctx)
	return pct >= NearCapacityThreshold, err
}

// GetCheckpoint returns the stored checkpoint for bucketID, or the zero
// value with ok=false if none has been recorded yet.
func (s *Store) GetCheckpoint(ctx context.Context, bucketID string) (synctypes.Checkpoint, bool, error) {
	v, err := s.do(func(db *sql.DB) (any, error) {
		var cp synctypes.Checkpoint
		var lastTS sql.NullTime
		err := db.QueryRowContext(ctx,
			"SELECT bucket_id, last_event_id, last_event_timestamp, updated_at FROM sync_checkpoints WHERE bucket_id = ?",
			bucketID).Scan(&cp.BucketID, &cp.LastEventID, &lastTS, &cp.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if lastTS.Valid {
			cp.LastEventTimestamp = lastTS.Time
		}
		return cp, nil
	})
	if err != nil {
		return synctypes.Checkpoint{}, false, fmt.Errorf("offlinequeue: get checkpoint: %w", err)
	}
	if v == nil {
		return synctypes.Checkpoint{}, false, nil
	}
	return v.(synctypes.Checkpoint), true, nil
}

// SetCheckpoint upserts the checkpoint for bucketID.
func (s *Store) SetCheckpoint(ctx context.Context, bucketID string, ts time.Time, lastID int64) error {
	_, err := s.do(func(db *sql.DB) (any, error) {
		_, err := db.ExecContext(ctx,
			`INSERT INTO sync_checkpoints (bucket_id, last_event_id, last_event_timestamp, updated_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(bucket_id) DO UPDATE SET
				last_event_id = excluded.last_event_id,
				last_event_timestamp = excluded.last_event_timestamp,
				updated_at = excluded.updated_at`,
			bucketID, lastID, ts, time.Now().UTC())
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("offlinequeue: set checkpoint: %w", err)
	}
	return nil
}

// GetAllCheckpoints returns every recorded checkpoint, keyed by bucket id.
func (s *Store) GetAllCheckpoints(ctx context.Context) (map[string]synctypes.Checkpoint, error) {
	v, err := s.do(func(db *sql.DB) (any, error) {
		rows, err := db.QueryContext(ctx, "SELECT bucket_id, last_event_id, last_event_timestamp, updated_at FROM sync_checkpoints")
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		out := make(map[string]synctypes.Checkpoint)
		for rows.Next() {
			var cp synctypes.Checkpoint
			var lastTS sql.NullTime
			if err := rows.Scan(&cp.BucketID, &cp.LastEventID, &lastTS, &cp.UpdatedAt); err != nil {
				return nil, err
			}
			if lastTS.Valid {
				cp.LastEventTimestamp = lastTS.Time
			}
			out[cp.BucketID] = cp
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("offlinequeue: get all checkpoints: %w", err)
	}
	return v.(map[string]synctypes.Checkpoint), nil
}

// SyncCategories atomically replaces the app category cache.
func (s *Store) SyncCategories(ctx context.Context, mapping map[string]string) error {
	_, err := s.do(func(db *sql.DB) (any, error) {
		return nil, uow.NewUnitOfWork(db).Do(ctx, func(ctx context.Context, tx database.DBTX) error {
			if _, err := tx.ExecContext(ctx, "DELETE FROM app_categories"); err != nil {
				return err
			}

			stmt, err := tx.PrepareContext(ctx,
				"INSERT INTO app_categories (app_name, category, updated_at) VALUES (?, ?, ?)")
			if err != nil {
				return err
			}
			defer stmt.Close()

			now := time.Now().UTC()
			for app, category := range mapping {
				if _, err := stmt.ExecContext(ctx, app, category, now); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("offlinequeue: sync categories: %w", err)
	}
	return nil
}

// GetCategory returns the cached category for app, or ok=false if unknown.
func (s *Store) GetCategory(ctx context.Context, app string) (string, bool, error) {
	v, err := s.do(func(db *sql.DB) (any, error) {
		var category string
		err := db.QueryRowContext(ctx, "SELECT category FROM app_categories WHERE app_name = ?", app).Scan(&category)
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return category, err
	})
	if err != nil {
		return "", false, fmt.Errorf("offlinequeue: get category: %w", err)
	}
	category := v.(string)
	return category, category != "", nil
}

// NewCorrelationID mints a ULID for correlating a queue drain attempt across
// log lines and trace spans.
func NewCorrelationID() (string, error) {
	id, err := vos.NewULID()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func execWithIDs(ctx context.Context, db *sql.DB, prefix string, ids []int64) error {
	placeholders := make([]any, len(ids))
	query := prefix + " ("
	for i, id := range ids {
		if i > 0 {
			query += ", "
		}
		query += "?"
		placeholders[i] = id
	}
	query += ")"
	_, err := db.ExecContext(ctx, query, placeholders...)
	return err
}
