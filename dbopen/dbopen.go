// Package dbopen opens the SQLite databases behind the vitrine pipeline
// with a known-good connection profile: WAL journaling, a 10 s busy
// timeout, synchronous NORMAL and foreign keys enforced.
//
// Pragmas travel in the DSN using modernc.org/sqlite's _pragma form, so
// they apply to every connection the pool opens, not only the first:
//
//	file:ledger.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)
//
// Open proves the profile with a first connection and applies any queued
// schema before handing the database out:
//
//	db, err := dbopen.Open("data/ledger.db", dbopen.WithSchema(ledger.Schema))
//
// OpenMemory is the test variant. Importing dbopen registers the driver;
// callers need no blank import of their own.
package dbopen

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

// settings is everything an Option can adjust before the DSN is built.
type settings struct {
	busyTimeoutMS int
	cacheSize     int // 0 leaves SQLite's default in place
	synchronous   string
	foreignKeys   bool
	mkdirParents  bool
	schemaSQL     []string
	schemaFiles   []string
}

// Option adjusts how Open configures the database.
type Option func(*settings)

// WithBusyTimeout overrides the busy timeout, in milliseconds.
func WithBusyTimeout(ms int) Option {
	return func(s *settings) { s.busyTimeoutMS = ms }
}

// WithCacheSize sets PRAGMA cache_size. Negative values are KiB, so
// -64000 asks for a 64 MB page cache.
func WithCacheSize(size int) Option {
	return func(s *settings) { s.cacheSize = size }
}

// WithSynchronous overrides PRAGMA synchronous ("OFF", "NORMAL", "FULL").
func WithSynchronous(level string) Option {
	return func(s *settings) { s.synchronous = level }
}

// WithMkdirAll creates the parent directories of the database file first.
func WithMkdirAll() Option {
	return func(s *settings) { s.mkdirParents = true }
}

// WithSchema queues DDL to run once the connection profile is in place.
// Multiple schemas run in the order given.
func WithSchema(ddl string) Option {
	return func(s *settings) { s.schemaSQL = append(s.schemaSQL, ddl) }
}

// WithSchemaFile queues a .sql file to read and run like WithSchema.
// Files run before inline schemas.
func WithSchemaFile(path string) Option {
	return func(s *settings) { s.schemaFiles = append(s.schemaFiles, path) }
}

// WithoutForeignKeys opens the database with foreign_keys off, for loads
// that insert rows out of dependency order.
func WithoutForeignKeys() Option {
	return func(s *settings) { s.foreignKeys = false }
}

// Open opens (creating if needed) the SQLite database at path, waits for
// a first connection to prove the DSN, then applies any queued schema.
func Open(path string, opts ...Option) (*sql.DB, error) {
	s := settings{
		busyTimeoutMS: 10_000,
		synchronous:   "NORMAL",
		foreignKeys:   true,
	}
	for _, opt := range opts {
		opt(&s)
	}

	if s.mkdirParents && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: parent of %s: %w", path, err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path, &s))
	if err != nil {
		return nil, fmt.Errorf("dbopen: open %s: %w", path, err)
	}
	if path == ":memory:" {
		// Each :memory: connection is its own database. Everything,
		// schema included, must go through the one connection that
		// later queries will reuse.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbopen: connect %s: %w", path, err)
	}
	if err := applySchemas(db, &s); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenMemory opens a throwaway in-memory database for tests and closes
// it on cleanup.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("open in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// dsn builds the modernc.org/sqlite connection string for path. The
// _pragma clauses run on every new pool connection.
func dsn(path string, s *settings) string {
	fk := 1
	if !s.foreignKeys {
		fk = 0
	}
	clauses := []string{
		"_pragma=journal_mode(WAL)",
		fmt.Sprintf("_pragma=busy_timeout(%d)", s.busyTimeoutMS),
		fmt.Sprintf("_pragma=synchronous(%s)", s.synchronous),
		fmt.Sprintf("_pragma=foreign_keys(%d)", fk),
	}
	if s.cacheSize != 0 {
		clauses = append(clauses, fmt.Sprintf("_pragma=cache_size(%d)", s.cacheSize))
	}
	return "file:" + path + "?" + strings.Join(clauses, "&")
}

func applySchemas(db *sql.DB, s *settings) error {
	for _, file := range s.schemaFiles {
		ddl, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("dbopen: schema file %s: %w", file, err)
		}
		if _, err := db.Exec(string(ddl)); err != nil {
			return fmt.Errorf("dbopen: schema file %s: %w", file, err)
		}
	}
	for _, ddl := range s.schemaSQL {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("dbopen: schema: %w", err)
		}
	}
	return nil
}
