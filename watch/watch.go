// Package watch turns an SQLite file into a change feed: poll a version
// token, wait out the flurry, run a reload action. The preview server
// points it at the run ledger so the cached status summary is rebuilt
// whenever the recorder, running in another process, appends rows.
//
//	w := watch.New(db, watch.Options{Interval: time.Second, Debounce: 500 * time.Millisecond})
//	go w.OnChange(ctx, func() error { return cache.Refresh() })
package watch

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// ChangeDetector reads a version token from the database. Two calls
// returning different values mean something changed. int64 fits both
// PRAGMA data_version and MAX(id) style queries.
type ChangeDetector func(ctx context.Context, db *sql.DB) (int64, error)

// Options tunes a Watcher.
type Options struct {
	// Interval between polls. Default 1s.
	Interval time.Duration
	// Debounce is how long the database must stay quiet after a change
	// before the action runs. Further changes restart the window. Zero
	// fires on the poll that sees the change.
	Debounce time.Duration
	// Detector defaults to PragmaDataVersion.
	Detector ChangeDetector
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Watcher polls one database and runs an action when its version token
// moves. Safe for concurrent use.
type Watcher struct {
	db       *sql.DB
	interval time.Duration
	debounce time.Duration
	detect   ChangeDetector
	log      *slog.Logger

	// version is the last token whose action completed.
	version atomic.Int64

	polls    atomic.Int64
	detected atomic.Int64
	failures atomic.Int64
	reloads  atomic.Int64
	busyNS   atomic.Int64
}

// New prepares a Watcher; OnChange starts it.
func New(db *sql.DB, opts Options) *Watcher {
	w := &Watcher{
		db:       db,
		interval: opts.Interval,
		debounce: opts.Debounce,
		detect:   opts.Detector,
		log:      opts.Logger,
	}
	if w.interval <= 0 {
		w.interval = time.Second
	}
	if w.detect == nil {
		w.detect = PragmaDataVersion
	}
	if w.log == nil {
		w.log = slog.Default()
	}
	return w
}

// Stats is a point-in-time view of the watcher's counters.
type Stats struct {
	Checks          int64         `json:"checks"`
	ChangesDetected int64         `json:"changes_detected"`
	Errors          int64         `json:"errors"`
	Reloads         int64         `json:"reloads"`
	AvgReloadTime   time.Duration `json:"avg_reload_time"`
}

// Stats returns the counters accumulated so far.
func (w *Watcher) Stats() Stats {
	s := Stats{
		Checks:          w.polls.Load(),
		ChangesDetected: w.detected.Load(),
		Errors:          w.failures.Load(),
		Reloads:         w.reloads.Load(),
	}
	if s.Reloads > 0 {
		s.AvgReloadTime = time.Duration(w.busyNS.Load() / s.Reloads)
	}
	return s
}

// Version returns the last token whose action completed.
func (w *Watcher) Version() int64 { return w.version.Load() }

// OnChange polls until ctx is cancelled. When the version token moves
// and the debounce window passes quietly, action runs. An action error
// leaves the stored version where it was, so the same change is seen
// again on a later poll and the action retried.
func (w *Watcher) OnChange(ctx context.Context, action func() error) {
	if seed, err := w.detect(ctx, w.db); err != nil {
		w.log.Warn("watch: first poll failed", "error", err)
	} else {
		w.version.Store(seed)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.log.Info("watch: polling", "interval", w.interval, "debounce", w.debounce)

	// pending is the token waiting out its debounce window, idle when
	// nothing is queued. Tokens come from data_version or row counters,
	// never negative.
	const idle = int64(-1)
	pending := idle
	var quiet *time.Timer
	var quietC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if quiet != nil {
				quiet.Stop()
			}
			w.log.Info("watch: stopped")
			return

		case <-ticker.C:
			w.polls.Add(1)
			token, err := w.detect(ctx, w.db)
			if err != nil {
				w.failures.Add(1)
				w.log.Warn("watch: poll failed", "error", err)
				continue
			}
			if token == w.version.Load() || token == pending {
				continue
			}
			w.detected.Add(1)
			pending = token
			if w.debounce <= 0 {
				w.run(action, pending)
				pending = idle
				continue
			}
			if quiet != nil {
				quiet.Stop()
			}
			quiet = time.NewTimer(w.debounce)
			quietC = quiet.C
			w.log.Debug("watch: change seen, holding", "token", token)

		case <-quietC:
			quietC = nil
			if pending != idle {
				w.run(action, pending)
				pending = idle
			}
		}
	}
}

func (w *Watcher) run(action func() error, token int64) {
	w.log.Info("watch: reloading", "from", w.version.Load(), "to", token)
	begin := time.Now()
	if err := action(); err != nil {
		w.failures.Add(1)
		w.log.Error("watch: reload failed", "error", err, "token", token)
		return
	}
	took := time.Since(begin)
	w.reloads.Add(1)
	w.busyNS.Add(int64(took))
	w.version.Store(token)
	w.log.Info("watch: reloaded", "token", token, "took", took)
}

// PragmaDataVersion reads PRAGMA data_version, which SQLite bumps when a
// different connection writes the file. That matches the recorder-writes,
// server-reads split, so it is the default detector.
func PragmaDataVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var token int64
	err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&token)
	return token, err
}

// MaxColumnDetector polls COALESCE(MAX(column), 0) on table. It notices
// writes data_version misses (same-connection writes, some network
// filesystems); the ledger's folder_events(id) is the intended target.
func MaxColumnDetector(table, column string) ChangeDetector {
	query := "SELECT COALESCE(MAX(" + quote(column) + "), 0) FROM " + quote(table)
	return func(ctx context.Context, db *sql.DB) (int64, error) {
		var token int64
		err := db.QueryRowContext(ctx, query).Scan(&token)
		return token, err
	}
}

// quote double-quotes an SQL identifier, escaping embedded quotes.
func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
