package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	iface "OnnxInspector/interface"
)

const (
	writeTimeout = 5 * time.Second
	queueSize    = 1024
)

var errClosed = errors.New("ledger closed")

type execFunc func(ctx context.Context, sql string, args ...any) error

// write is one queued statement. A write with a barrier only marks a point
// in the queue for Flush.
type write struct {
	op      string
	run     string
	sql     string
	args    []any
	barrier chan struct{}
}

// Store keeps a ledger of inspection runs and per-file outcomes in PostgreSQL.
// Recorder calls only queue the statement; a single goroutine executes them
// in order.
type Store struct {
	pool *pgxpool.Pool
	exec execFunc
	log  *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan write
	done   chan struct{}
}

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID         string        `json:"id"`
	SourceDir  string        `json:"sourceDir"`
	State      string        `json:"state"`
	Total      int           `json:"total"`
	Counts     iface.Counts  `json:"counts"`
	Status     string        `json:"status"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt *time.Time    `json:"finishedAt,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
}

// New connects and ensures the schema exists.
func New(ctx context.Context, connString string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	exec := func(ctx context.Context, sql string, args ...any) error {
		_, err := pool.Exec(ctx, sql, args...)
		return err
	}
	return newStore(pool, exec, log), nil
}

func newStore(pool *pgxpool.Pool, exec execFunc, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		pool:  pool,
		exec:  exec,
		log:   log,
		queue: make(chan write, queueSize),
		done:  make(chan struct{}),
	}
	go s.drain()
	return s
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS inspection_runs (
			id TEXT PRIMARY KEY,
			source_dir TEXT NOT NULL,
			state TEXT NOT NULL,
			total INT NOT NULL DEFAULT 0,
			ok_count INT NOT NULL DEFAULT 0,
			ng_count INT NOT NULL DEFAULT 0,
			skipped_count INT NOT NULL DEFAULT 0,
			errored_count INT NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ,
			elapsed_ms BIGINT NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS inspection_files (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL REFERENCES inspection_runs(id) ON DELETE CASCADE,
			file_name TEXT NOT NULL,
			camera TEXT NOT NULL,
			outcome TEXT NOT NULL,
			verdict TEXT NOT NULL,
			present BOOLEAN NOT NULL,
			dest TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			duration_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS inspection_files_run_id_idx ON inspection_files (run_id);
	`
	_, err := pool.Exec(ctx, query)
	return err
}

// Close executes what is queued, then closes the pool. Safe to call twice.
func (s *Store) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
	if s.pool != nil {
		s.pool.Close()
	}
}

// Flush waits until every write queued before the call has been executed.
func (s *Store) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	if !s.enqueue(write{op: "flush", barrier: barrier}, true) {
		return errClosed
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue never blocks when wait is false: a full queue drops the write.
func (s *Store) enqueue(w write, wait bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.log.Warn("ledger closed, write dropped", zap.String("op", w.op), zap.String("run", w.run))
		return false
	}
	if wait {
		s.queue <- w
		return true
	}
	select {
	case s.queue <- w:
		return true
	default:
		s.log.Warn("ledger queue full, write dropped", zap.String("op", w.op), zap.String("run", w.run))
		return false
	}
}

func (s *Store) drain() {
	defer close(s.done)
	for w := range s.queue {
		if w.barrier != nil {
			close(w.barrier)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := s.exec(ctx, w.sql, w.args...)
		cancel()
		if err != nil {
			s.log.Warn("ledger: "+w.op, zap.String("run", w.run), zap.Error(err))
		}
	}
}

// RunStarted and RunFinished always reach the queue; per-file rows give way
// under back pressure so the inspection never waits on the database.
func (s *Store) RunStarted(run iface.RunInfo) {
	s.enqueue(write{
		op:  "insert run",
		run: run.ID,
		sql: `
		INSERT INTO inspection_runs (id, source_dir, state, started_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`,
		args: []any{run.ID, run.SourceDir, iface.StateLoading.String(), run.StartedAt},
	}, true)
}

func (s *Store) FileDone(run iface.RunInfo, outcome iface.Outcome) {
	s.enqueue(write{
		op:  "insert file",
		run: run.ID,
		sql: `
		INSERT INTO inspection_files (run_id, file_name, camera, outcome, verdict, present, dest, error, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		args: []any{run.ID, outcome.File, outcome.Camera.String(), outcome.Kind.String(), outcome.Verdict.String(),
			outcome.Present, outcome.Dest, errString(outcome.Err), outcome.Duration.Milliseconds()},
	}, false)
}

func (s *Store) RunFinished(run iface.RunInfo, summary iface.Summary) {
	s.enqueue(write{
		op:  "finish run",
		run: run.ID,
		sql: `
		UPDATE inspection_runs
		SET state = $2, total = $3, ok_count = $4, ng_count = $5, skipped_count = $6,
			errored_count = $7, status = $8, finished_at = NOW(), elapsed_ms = $9
		WHERE id = $1
	`,
		args: []any{run.ID, summary.State.String(), summary.Total, summary.Counts.OK, summary.Counts.NG,
			summary.Counts.Skipped, summary.Counts.Errored, summary.Status, summary.Elapsed.Milliseconds()},
	}, true)
}

// Recent returns the latest runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, source_dir, state, total, ok_count, ng_count, skipped_count, errored_count,
			status, started_at, finished_at, elapsed_ms
		FROM inspection_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (RunRecord, error) {
		var r RunRecord
		var elapsedMs int64
		err := row.Scan(&r.ID, &r.SourceDir, &r.State, &r.Total, &r.Counts.OK, &r.Counts.NG,
			&r.Counts.Skipped, &r.Counts.Errored, &r.Status, &r.StartedAt, &r.FinishedAt, &elapsedMs)
		r.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		return r, err
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
