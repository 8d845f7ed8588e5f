package watch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/vitrine/dbopen"
)

// The tests drive the watcher through PRAGMA user_version, which bumps
// deterministically on command, unlike data_version.
func userVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var token int64
	err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&token)
	return token, err
}

func bumpVersion(t *testing.T, db *sql.DB, v int) {
	t.Helper()
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", v)); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("gave up waiting for %s", what)
}

func TestNew_Defaults(t *testing.T) {
	w := New(dbopen.OpenMemory(t), Options{})

	if w.interval != time.Second {
		t.Errorf("interval = %v, want 1s", w.interval)
	}
	if w.detect == nil {
		t.Error("detector not defaulted")
	}
	if w.log == nil {
		t.Error("logger not defaulted")
	}
}

func TestPragmaDataVersion_Reads(t *testing.T) {
	token, err := PragmaDataVersion(context.Background(), dbopen.OpenMemory(t))
	if err != nil {
		t.Fatalf("PragmaDataVersion: %v", err)
	}
	if token < 0 {
		t.Errorf("token = %d, want >= 0", token)
	}
}

func TestMaxColumnDetector_TracksHighestID(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(
		`CREATE TABLE folder_events (id INTEGER PRIMARY KEY, folder TEXT)`))
	det := MaxColumnDetector("folder_events", "id")
	ctx := context.Background()

	token, err := det(ctx, db)
	if err != nil {
		t.Fatalf("detector on empty table: %v", err)
	}
	if token != 0 {
		t.Errorf("empty table token = %d, want 0", token)
	}

	if _, err := db.Exec(`INSERT INTO folder_events (id, folder) VALUES (100, 'cafe_luna')`); err != nil {
		t.Fatalf("insert event: %v", err)
	}
	token, err = det(ctx, db)
	if err != nil {
		t.Fatalf("detector after insert: %v", err)
	}
	if token != 100 {
		t.Errorf("token = %d, want 100", token)
	}
}

func TestOnChange_RunsActionOnBump(t *testing.T) {
	db := dbopen.OpenMemory(t)
	w := New(db, Options{Interval: 10 * time.Millisecond, Detector: userVersion})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reloads atomic.Int32
	go w.OnChange(ctx, func() error {
		reloads.Add(1)
		return nil
	})

	// The seed read happens before the first tick, so one completed poll
	// means bumps from here on are seen as changes.
	waitFor(t, 2*time.Second, "first poll", func() bool { return w.Stats().Checks > 0 })

	bumpVersion(t, db, 1)
	waitFor(t, 2*time.Second, "first reload", func() bool { return reloads.Load() == 1 })

	bumpVersion(t, db, 2)
	waitFor(t, 2*time.Second, "second reload", func() bool { return reloads.Load() == 2 })

	// Quiet database, no further reloads.
	time.Sleep(60 * time.Millisecond)
	if got := reloads.Load(); got != 2 {
		t.Errorf("reloads after quiet period = %d, want 2", got)
	}
}

func TestOnChange_DebounceCollapsesBurst(t *testing.T) {
	db := dbopen.OpenMemory(t)
	w := New(db, Options{
		Interval: 10 * time.Millisecond,
		Debounce: 150 * time.Millisecond,
		Detector: userVersion,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reloads atomic.Int32
	go w.OnChange(ctx, func() error {
		reloads.Add(1)
		return nil
	})
	waitFor(t, 2*time.Second, "first poll", func() bool { return w.Stats().Checks > 0 })

	// A burst of bumps inside the debounce window.
	for v := 1; v <= 5; v++ {
		bumpVersion(t, db, v)
		time.Sleep(20 * time.Millisecond)
	}
	if got := reloads.Load(); got != 0 {
		t.Fatalf("reloads during debounce window = %d, want 0", got)
	}

	waitFor(t, 2*time.Second, "debounced reload", func() bool { return reloads.Load() == 1 })

	// The burst collapses to exactly one reload.
	time.Sleep(200 * time.Millisecond)
	if got := reloads.Load(); got != 1 {
		t.Errorf("reloads after settle = %d, want 1", got)
	}
	if v := w.Version(); v != 5 {
		t.Errorf("version = %d, want 5", v)
	}
}

func TestOnChange_RetriesAfterActionError(t *testing.T) {
	db := dbopen.OpenMemory(t)
	w := New(db, Options{Interval: 10 * time.Millisecond, Detector: userVersion})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	go w.OnChange(ctx, func() error {
		if calls.Add(1) == 1 {
			return errors.New("cache rebuild failed")
		}
		return nil
	})
	waitFor(t, 2*time.Second, "first poll", func() bool { return w.Stats().Checks > 0 })

	bumpVersion(t, db, 1)

	// First attempt fails and must not advance the version; the next
	// poll retries and succeeds.
	waitFor(t, 2*time.Second, "retried action", func() bool { return w.Version() == 1 })
	if got := calls.Load(); got < 2 {
		t.Errorf("action calls = %d, want >= 2 (failure then retry)", got)
	}
}

func TestOnChange_StopsOnCancel(t *testing.T) {
	w := New(dbopen.OpenMemory(t), Options{Interval: 10 * time.Millisecond, Detector: userVersion})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.OnChange(ctx, func() error { return nil })
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnChange did not return after cancel")
	}
}

func TestStats_CountsPollsAndReloads(t *testing.T) {
	db := dbopen.OpenMemory(t)
	w := New(db, Options{Interval: 10 * time.Millisecond, Detector: userVersion})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reloads atomic.Int32
	go w.OnChange(ctx, func() error {
		reloads.Add(1)
		return nil
	})
	waitFor(t, 2*time.Second, "first poll", func() bool { return w.Stats().Checks > 0 })

	bumpVersion(t, db, 1)
	waitFor(t, 2*time.Second, "reload", func() bool { return reloads.Load() == 1 })

	s := w.Stats()
	if s.Checks == 0 {
		t.Error("Checks = 0, want > 0")
	}
	if s.ChangesDetected == 0 {
		t.Error("ChangesDetected = 0, want > 0")
	}
	if s.Reloads == 0 {
		t.Error("Reloads = 0, want > 0")
	}
	if s.Errors != 0 {
		t.Errorf("Errors = %d, want 0", s.Errors)
	}
}
