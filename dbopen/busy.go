package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// The ledger is written by the pipeline while the preview server reads
// it, so short SQLITE_BUSY windows are normal and get waited out.
const (
	busyAttempts = 3
	busyBackoff  = 100 * time.Millisecond
)

// IsBusy reports whether err is SQLite lock contention: SQLITE_BUSY or
// one of the "database is locked" message variants.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	text := err.Error()
	for _, marker := range []string{"SQLITE_BUSY", "database is locked", "database table is locked"} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// withBusyRetry runs op up to busyAttempts times, backing off 100 then
// 200 ms between tries. Errors that are not lock contention return
// immediately.
func withBusyRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 1; attempt <= busyAttempts; attempt++ {
		if err = op(); err == nil || !IsBusy(err) {
			return err
		}
		if attempt == busyAttempts {
			break
		}
		timer := time.NewTimer(time.Duration(attempt) * busyBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("dbopen: cancelled while waiting out a lock: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("dbopen: still locked after %d attempts: %w", busyAttempts, err)
}

// Exec runs a single statement, retrying on lock contention.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := withBusyRetry(ctx, func() error {
		var execErr error
		res, execErr = db.ExecContext(ctx, query, args...)
		return execErr
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RunTx executes fn inside a transaction, retrying the whole transaction
// on lock contention. An error from fn rolls the transaction back and is
// returned unchanged.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return withBusyRetry(ctx, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("dbopen: begin transaction: %w", err)
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("dbopen: commit transaction: %w", err)
		}
		return nil
	})
}
