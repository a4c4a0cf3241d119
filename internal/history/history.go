// Package history persists an append-only action log to SQLite. Writes are
// buffered in memory and flushed in batches so workers never wait on disk.
// The log is an audit trail of what the run did, nothing reads it back at
// runtime.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	_ "modernc.org/sqlite"

	"github.com/quietriver/chaff/internal/engine"
	"github.com/quietriver/chaff/internal/telemetry"
)

// maxBufferCapacity is the hard upper limit on buffered events. When it is
// reached, Append applies backpressure by returning an error.
const maxBufferCapacity = 10_000

const schema = `
CREATE TABLE IF NOT EXISTS actions (
	id         TEXT PRIMARY KEY,
	ts         INTEGER NOT NULL,
	worker_id  INTEGER NOT NULL,
	session_id TEXT NOT NULL,
	category   TEXT NOT NULL,
	kind       TEXT NOT NULL,
	url        TEXT NOT NULL,
	query      TEXT NOT NULL DEFAULT '',
	delay_ms   INTEGER NOT NULL,
	pacing     TEXT NOT NULL,
	success    INTEGER NOT NULL,
	escalated  INTEGER NOT NULL,
	chained    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_actions_ts ON actions(ts);
CREATE INDEX IF NOT EXISTS idx_actions_category ON actions(category);
`

// Store buffers events in memory and flushes them to SQLite when either the
// batch size or the flush interval is reached.
type Store struct {
	db            *sql.DB
	logger        *slog.Logger
	maxBatch      int
	flushInterval time.Duration

	mu     sync.Mutex
	events []engine.Event

	droppedEvents atomic.Int64

	flushCh    chan struct{}
	done       chan struct{}
	cancelLoop context.CancelFunc
	drainCtx   context.Context // set by Drain so the final flush respects the caller's deadline
}

// Open creates or opens the log database at path and prepares the schema.
func Open(path string, maxBatch int, flushInterval time.Duration, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// modernc sqlite serializes writes; one connection avoids lock churn.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &Store{
		db:            db,
		logger:        logger,
		maxBatch:      maxBatch,
		flushInterval: flushInterval,
		flushCh:       make(chan struct{}, 1),
		done:          make(chan struct{}),
	}, nil
}

// Start begins the background flush loop and registers buffer gauges.
// Call Drain to stop.
func (s *Store) Start(ctx context.Context) {
	s.registerMetrics()
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancelLoop = cancel
	go s.flushLoop(loopCtx)
}

// Append buffers one event. Returns an error when the buffer is at
// capacity (backpressure); the caller drops the event and moves on.
func (s *Store) Append(ev engine.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.events) >= maxBufferCapacity {
		return fmt.Errorf("history: buffer at capacity (%d events)", len(s.events))
	}
	s.events = append(s.events, ev)

	if len(s.events) >= s.maxBatch {
		select {
		case s.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

func (s *Store) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final flush. ctx is already done, so use the drain context
			// (which carries the caller's deadline) or a bounded fallback.
			if s.drainCtx != nil {
				s.flush(s.drainCtx)
			} else {
				fallbackCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				s.flush(fallbackCtx)
				cancel()
			}
			close(s.done)
			return
		case <-ticker.C:
			s.flush(ctx)
		case <-s.flushCh:
			s.flush(ctx)
		}
	}
}

func (s *Store) flush(ctx context.Context) {
	s.mu.Lock()
	if len(s.events) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.events
	s.events = nil
	s.mu.Unlock()

	start := time.Now()
	err := s.insertBatch(ctx, batch)
	if err != nil {
		s.logger.Error("history: flush failed", "error", err, "batch_size", len(batch))
		// Put events back for retry, but respect the capacity limit.
		s.mu.Lock()
		if len(s.events)+len(batch) <= maxBufferCapacity {
			s.events = append(batch, s.events...)
		} else {
			s.droppedEvents.Add(int64(len(batch)))
			s.logger.Error("history: dropping events, buffer at capacity after flush failure", "dropped", len(batch))
		}
		s.mu.Unlock()
		return
	}

	s.logger.Debug("history: batch flushed",
		"batch_size", len(batch),
		"flush_duration_ms", time.Since(start).Milliseconds(),
	)
}

func (s *Store) insertBatch(ctx context.Context, batch []engine.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO actions
		(id, ts, worker_id, session_id, category, kind, url, query, delay_ms, pacing, success, escalated, chained)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, ev := range batch {
		if _, err := stmt.ExecContext(ctx,
			uuid.NewString(), ev.Time.UnixMilli(), ev.WorkerID, ev.SessionID,
			string(ev.Category), string(ev.Kind), ev.URL, ev.Query,
			ev.Delay.Milliseconds(), ev.Pacing,
			boolInt(ev.Success), boolInt(ev.Escalated), boolInt(ev.Chained),
		); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
	}
	return tx.Commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Drain signals the flush loop to stop, waits for its final flush, then
// closes the database. The ctx deadline bounds both the wait and the flush.
func (s *Store) Drain(ctx context.Context) {
	s.drainCtx = ctx
	if s.cancelLoop != nil {
		s.cancelLoop()
		select {
		case <-s.done:
		case <-ctx.Done():
			s.logger.Warn("history: drain timed out waiting for flush loop")
		}
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn("history: close database", "error", err)
	}
}

// Len returns the current number of buffered events.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// DroppedEvents returns how many events were lost to capacity exhaustion
// after flush failures. Non-zero means the audit trail has gaps.
func (s *Store) DroppedEvents() int64 {
	return s.droppedEvents.Load()
}

func (s *Store) registerMetrics() {
	meter := telemetry.Meter("chaff/history")

	_, _ = meter.Int64ObservableGauge("chaff.history.buffer_depth",
		metric.WithDescription("Current number of events in the write buffer"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(s.Len()))
			return nil
		}),
	)

	_, _ = meter.Int64ObservableGauge("chaff.history.dropped_total",
		metric.WithDescription("Total events dropped due to buffer capacity exhaustion"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(s.DroppedEvents())
			return nil
		}),
	)
}
