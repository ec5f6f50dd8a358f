// Package db provides the SQLite storage layer for the Moussadar portal.
//
// One database file holds both the static reference catalogue (services,
// documents, procedures, FAQ) and the offline action queue that clients
// sync into. The database runs in WAL mode so that HTTP handlers can read
// while a batch is being appended.
//
// Architecture:
//   - Database file: data/moussadar.db (configurable)
//   - WAL mode with a 5s busy timeout
//   - Schema: services, documents, procedures, faq, offline_queue,
//     user_preferences, cache
//   - Timestamps: fixed-width UTC text (schema.TimeLayout), written from Go
//
// There is no transaction spanning an offline batch. Each queue insert
// commits on its own, so a crash mid-batch leaves the committed prefix.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/moussadar/moussadar/internal/clock"
	"github.com/moussadar/moussadar/internal/portal/schema"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps the SQLite connection pool.
type DB struct {
	conn  *sql.DB
	path  string
	clock clock.Clock
}

// Open creates a new database connection at the specified path.
//
// The parent directory is created if needed. The caller MUST call Close()
// when done so the WAL is checkpointed.
//
// Example:
//
//	database, err := db.Open("data/moussadar.db")
//	if err != nil {
//	    return err
//	}
//	defer database.Close()
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// busy_timeout and foreign_keys are per connection, so they go in the
	// DSN where every pooled connection picks them up
	conn, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn:  conn,
		path:  path,
		clock: clock.NewRealClock(),
	}

	// WAL lets readers proceed while a batch is being written
	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	return db, nil
}

// dsn builds the file: URI for path. The path is escaped so that '?', '#'
// and '%' in a directory name stay part of the file name.
func dsn(path string) string {
	u := url.URL{
		Scheme:   "file",
		Path:     filepath.ToSlash(path),
		OmitHost: true,
		RawQuery: "_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)",
	}
	return u.String()
}

// SetClock replaces the clock used for every timestamp this DB writes.
func (db *DB) SetClock(c clock.Clock) {
	db.clock = c
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// Remove deletes the database file and its WAL side files.
// The database must not be open.
func Remove(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	return nil
}

func (db *DB) now() string {
	return schema.FormatTime(db.clock.Now())
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
