// Package store provides the durable local cache for the task sync engine.
//
// Two stores share one embedded SQLite database (ncruces/go-sqlite3, WAL
// mode so readers keep working while a cycle commits):
//   - TaskStore holds LocalTask records. Writes are buffered in a Batch and
//     applied in a single transaction by Commit.
//   - RequestStore holds ProcessInstanceCreationRequest records. Each save
//     is its own transaction and refuses to move a terminal request.
//
// Writers are serialized by a mutex on DB, so two reconciliation cycles can
// never interleave their commits.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// timeLayout sorts lexicographically; every stored time is UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DB wraps the SQLite connection shared by the task and request stores.
type DB struct {
	conn *sql.DB
	path string

	// writeMu serializes writers across both stores.
	writeMu sync.Mutex
}

// Open creates a new database connection at the specified path.
//
// The database is opened with WAL journaling and a busy timeout applied to
// every pooled connection. The caller MUST call Close() when done.
//
// Example:
//
//	database, err := store.Open(".tasksync/tasks.db")
//	if err != nil {
//	    return err
//	}
//	defer database.Close()
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, dsErr("open", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, dsErr("ping", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return &DB{conn: conn, path: path}, nil
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
		return dsErr("close", err)
	}

	db.conn = nil
	return nil
}

const createSchemaSQL = `
CREATE TABLE IF NOT EXISTS local_tasks (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	component_id TEXT NOT NULL DEFAULT '',
	component_name TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	owner TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL DEFAULT '',
	action_user TEXT NOT NULL DEFAULT '',
	action_status TEXT NOT NULL DEFAULT '',
	input_variables TEXT NOT NULL DEFAULT '[]',   -- JSON array of {key,value}
	output_variables TEXT NOT NULL DEFAULT '[]',  -- JSON array of {key,value}
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_local_tasks_owner_status ON local_tasks(owner, status);
CREATE INDEX IF NOT EXISTS idx_local_tasks_action_status ON local_tasks(action_status);
CREATE INDEX IF NOT EXISTS idx_local_tasks_component ON local_tasks(component_id);

CREATE TABLE IF NOT EXISTS process_requests (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	process_name TEXT NOT NULL,
	params TEXT NOT NULL DEFAULT '{}',            -- JSON object
	variables TEXT NOT NULL DEFAULT '[]',         -- JSON array of {key,value}
	user_id TEXT NOT NULL DEFAULT '',
	component_id TEXT NOT NULL DEFAULT '',
	component_name TEXT NOT NULL DEFAULT '',
	request_time TEXT NOT NULL,
	sync_time TEXT,
	wf_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'REQUESTED'
		CHECK (status IN ('REQUESTED', 'REJECTED', 'CREATED')),
	sync_message TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_process_requests_status
	ON process_requests(status, request_time);

CREATE TABLE IF NOT EXISTS sync_leases (
	user_id TEXT PRIMARY KEY,
	holder TEXT NOT NULL,
	expires_at TEXT NOT NULL
);
`

// CreateSchema creates every table and index. Idempotent.
func (db *DB) CreateSchema(ctx context.Context) error {
	if db.conn == nil {
		return ErrClosed
	}
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	if _, err := db.conn.ExecContext(ctx, createSchemaSQL); err != nil {
		return dsErr("create schema", err)
	}
	return db.addColumn(ctx, "local_tasks", "action_user", "TEXT NOT NULL DEFAULT ''")
}

// addColumn adds a column to caches created before it existed.
func (db *DB) addColumn(ctx context.Context, table, column, decl string) error {
	rows, err := db.conn.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return dsErr("inspect "+table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return dsErr("inspect "+table, err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return dsErr("inspect "+table, err)
	}
	if _, err := db.conn.ExecContext(ctx, `ALTER TABLE `+table+` ADD COLUMN `+column+` `+decl); err != nil {
		return dsErr("add column "+column, err)
	}
	return nil
}

// DropSchema removes every table. Used by tests and `schema drop`.
func (db *DB) DropSchema(ctx context.Context) error {
	if db.conn == nil {
		return ErrClosed
	}
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	if _, err := db.conn.ExecContext(ctx, `
		DROP TABLE IF EXISTS local_tasks;
		DROP TABLE IF EXISTS process_requests;
		DROP TABLE IF EXISTS sync_leases;
	`); err != nil {
		return dsErr("drop schema", err)
	}
	return nil
}

// withTx runs fn in one write transaction while holding the writer lock.
func (db *DB) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	if db.conn == nil {
		return ErrClosed
	}
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return dsErr(op+": begin", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return dsErr(op+": commit", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		if t2, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
			return t2.UTC()
		}
		return time.Time{}
	}
	return t
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTime(ns.String)
	if t.IsZero() {
		return nil
	}
	return &t
}
