// Package ledger persists batch outcomes to SQLite: one row per run, one row
// per folder processed. Folder events are written asynchronously so a slow
// disk never stalls a recording session; run lifecycle writes are synchronous
// because the batch driver needs them durable before it proceeds.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/vitrine/dbopen"
	"github.com/hazyhaar/vitrine/idgen"
)

// Schema for the runs and folder_events tables.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	stage TEXT NOT NULL DEFAULT 'record',
	query TEXT NOT NULL DEFAULT '',
	started_at INTEGER NOT NULL,
	finished_at INTEGER,
	folders_total INTEGER NOT NULL DEFAULT 0,
	folders_ok INTEGER NOT NULL DEFAULT 0,
	folders_failed INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'running'
);
CREATE TABLE IF NOT EXISTS folder_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	folder TEXT NOT NULL,
	status TEXT NOT NULL,
	detail TEXT,
	video_path TEXT,
	trace_path TEXT,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(id)
);
CREATE INDEX IF NOT EXISTS idx_folder_events_run ON folder_events(run_id);
CREATE INDEX IF NOT EXISTS idx_folder_events_failed ON folder_events(status) WHERE status = 'failed';
`

// Event statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Event is one folder outcome inside a run.
type Event struct {
	RunID      string `json:"run_id"`
	Folder     string `json:"folder"`
	Status     string `json:"status"`
	Detail     string `json:"detail,omitempty"`
	VideoPath  string `json:"video_path,omitempty"`
	TracePath  string `json:"trace_path,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	CreatedAt  int64  `json:"created_at"`

	// flush, when set, marks a barrier: the writer flushes everything queued
	// before it and closes the channel instead of persisting the event.
	flush chan struct{}
}

// RunSummary is one row of the runs table.
type RunSummary struct {
	ID            string `json:"id"`
	Stage         string `json:"stage"`
	Query         string `json:"query,omitempty"`
	StartedAt     int64  `json:"started_at"`
	FinishedAt    int64  `json:"finished_at,omitempty"`
	FoldersTotal  int    `json:"folders_total"`
	FoldersOK     int    `json:"folders_ok"`
	FoldersFailed int    `json:"folders_failed"`
	Status        string `json:"status"`
}

// Status is the aggregate the status server and the vitrine_status tool expose.
type Status struct {
	Runs           []RunSummary `json:"runs"`
	RecentFailures []Event      `json:"recent_failures"`
	EventsDropped  int64        `json:"events_dropped,omitempty"`
}

// Ledger owns the database connection and the async event writer.
type Ledger struct {
	db  *sql.DB
	log *slog.Logger
	gen idgen.Generator

	ch      chan *Event
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option { return func(lg *Ledger) { lg.log = l } }

// WithGenerator overrides the run ID generator.
func WithGenerator(g idgen.Generator) Option { return func(lg *Ledger) { lg.gen = g } }

// Open opens (creating if needed) the ledger database at path.
func Open(path string, opts ...Option) (*Ledger, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("ledger: open: %w", err)
	}
	return New(db, opts...), nil
}

// New wraps an already-open database. The schema must be applied by the
// caller (dbopen.WithSchema(ledger.Schema)). Used directly in tests with
// dbopen.OpenMemory.
func New(db *sql.DB, opts ...Option) *Ledger {
	l := &Ledger{
		db:   db,
		log:  slog.Default(),
		gen:  idgen.Prefixed("run_", idgen.UUIDv7()),
		ch:   make(chan *Event, 1024),
		done: make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	go l.flushLoop()
	return l
}

// DB exposes the underlying connection so the status server can point a
// change watcher at it.
func (l *Ledger) DB() *sql.DB { return l.db }

// StartRun inserts a new run row in "running" state and returns its ID.
// stage names which pipeline step this run covers ("prospect", "draft",
// "render", "record"); query is the originating search query, if any.
func (l *Ledger) StartRun(ctx context.Context, stage, query string, foldersTotal int) (string, error) {
	id := l.gen()
	_, err := dbopen.Exec(ctx, l.db,
		`INSERT INTO runs (id, stage, query, started_at, folders_total, status) VALUES (?, ?, ?, ?, ?, 'running')`,
		id, stage, query, time.Now().UnixMilli(), foldersTotal)
	if err != nil {
		return "", fmt.Errorf("ledger: start run: %w", err)
	}
	return id, nil
}

// FinishRun drains pending folder events for durability, then closes the run
// row. Status becomes "ok" when nothing failed, "partial" otherwise.
func (l *Ledger) FinishRun(ctx context.Context, runID string, ok, failed int) error {
	status := "ok"
	if failed > 0 {
		status = "partial"
	}
	_, err := dbopen.Exec(ctx, l.db,
		`UPDATE runs SET finished_at = ?, folders_ok = ?, folders_failed = ?, status = ? WHERE id = ?`,
		time.Now().UnixMilli(), ok, failed, status, runID)
	if err != nil {
		return fmt.Errorf("ledger: finish run: %w", err)
	}
	return nil
}

// RecordAsync queues a folder event for async persistence. Non-blocking:
// when the buffer is full the oldest queued event is dropped (counted) to
// make room, so the most recent outcomes survive overload.
func (l *Ledger) RecordAsync(e *Event) {
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().UnixMilli()
	}
	for range 3 {
		select {
		case l.ch <- e:
			return
		default:
		}
		select {
		case old := <-l.ch:
			if old.flush != nil {
				// A barrier popped under overflow is released immediately;
				// its Flush caller just loses the durability wait.
				close(old.flush)
				continue
			}
			l.dropped.Add(1)
			l.log.Warn("ledger: event buffer full, dropped oldest", "folder", old.Folder)
		default:
		}
	}
	l.dropped.Add(1)
	l.log.Warn("ledger: event buffer full, dropping", "folder", e.Folder)
}

// Dropped reports how many events were discarded due to buffer overflow.
func (l *Ledger) Dropped() int64 { return l.dropped.Load() }

// Close drains the buffer and stops the flush goroutine. The database stays
// open; the caller owns it if it was passed via New.
func (l *Ledger) Close() error {
	l.once.Do(func() {
		close(l.ch)
		<-l.done
	})
	return nil
}

// Status returns the most recent runs (up to limit, default 10) and the last
// 20 failed folder events across all runs.
func (l *Ledger) Status(ctx context.Context, limit int) (*Status, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, stage, query, started_at, COALESCE(finished_at, 0), folders_total, folders_ok, folders_failed, status
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: query runs: %w", err)
	}
	defer rows.Close()

	st := &Status{Runs: []RunSummary{}, RecentFailures: []Event{}, EventsDropped: l.dropped.Load()}
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.Stage, &r.Query, &r.StartedAt, &r.FinishedAt, &r.FoldersTotal, &r.FoldersOK, &r.FoldersFailed, &r.Status); err != nil {
			return nil, fmt.Errorf("ledger: scan run: %w", err)
		}
		st.Runs = append(st.Runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterate runs: %w", err)
	}

	frows, err := l.db.QueryContext(ctx,
		`SELECT run_id, folder, status, COALESCE(detail, ''), COALESCE(video_path, ''), COALESCE(trace_path, ''), duration_ms, created_at
		 FROM folder_events WHERE status = 'failed' ORDER BY id DESC LIMIT 20`)
	if err != nil {
		return nil, fmt.Errorf("ledger: query failures: %w", err)
	}
	defer frows.Close()

	for frows.Next() {
		var e Event
		if err := frows.Scan(&e.RunID, &e.Folder, &e.Status, &e.Detail, &e.VideoPath, &e.TracePath, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan failure: %w", err)
		}
		st.RecentFailures = append(st.RecentFailures, e)
	}
	if err := frows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterate failures: %w", err)
	}
	return st, nil
}

// Flush forces any buffered events to disk without closing the writer.
// The batch driver calls this before FinishRun so run totals and folder rows
// land together.
func (l *Ledger) Flush(ctx context.Context) error {
	fc := make(chan struct{})
	select {
	case l.ch <- &Event{flush: fc}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-fc:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Ledger) flushLoop() {
	defer close(l.done)

	batch := make([]*Event, 0, 64)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-l.ch:
			if !ok {
				l.flushBatch(batch)
				return
			}
			if e.flush != nil {
				l.flushBatch(batch)
				batch = batch[:0]
				close(e.flush)
				continue
			}
			batch = append(batch, e)
			if len(batch) >= 64 {
				l.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				l.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (l *Ledger) flushBatch(batch []*Event) {
	if len(batch) == 0 {
		return
	}

	tx, err := l.db.Begin()
	if err != nil {
		l.log.Error("ledger: begin tx", "error", err)
		return
	}

	stmt, err := tx.Prepare(`INSERT INTO folder_events (run_id, folder, status, detail, video_path, trace_path, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		l.log.Error("ledger: prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, e := range batch {
		if _, err := stmt.Exec(e.RunID, e.Folder, e.Status, e.Detail, e.VideoPath, e.TracePath, e.DurationMS, e.CreatedAt); err != nil {
			l.log.Error("ledger: insert event", "error", err, "folder", e.Folder)
		}
	}

	if err := tx.Commit(); err != nil {
		l.log.Error("ledger: commit", "error", err)
	}
}
