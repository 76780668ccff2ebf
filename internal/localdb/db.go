// Package localdb implements the server's SQLite-backed bookkeeping
// store: a durable log of audit events (authorization decisions and
// ingest writes), kept separate from the analytic engine's own
// connection pool.
package localdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the sqlite connection backing the audit event log.
type DB struct{ db *sql.DB }

// Open opens/creates the sqlite database file under the provided state
// directory and ensures the audit_events table exists.
func Open(stateDir string) (*DB, error) {
	if stateDir == "" {
		stateDir = "."
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, err
	}
	path := filepath.Join(stateDir, "bookkeeping.sqlite")
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("localdb: setting journal mode: %w", err)
	}
	const schema = `CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		object TEXT NOT NULL,
		allowed INTEGER NOT NULL,
		filter TEXT NOT NULL DEFAULT '',
		ts DATETIME NOT NULL
	)`
	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("localdb: init schema: %w", err)
	}
	return &DB{db: sqlDB}, nil
}

func (d *DB) Close() error { return d.db.Close() }

// AuditEvent is one row of the audit_events table: an identity acting on
// an object, and the outcome of that action.
type AuditEvent struct {
	ID        string
	Actor     string
	Action    string
	Object    string
	Allowed   bool
	Filter    string
	Timestamp time.Time
}

// InsertAuditEvent appends one audit record.
func (d *DB) InsertAuditEvent(e AuditEvent) error {
	_, err := d.db.Exec(
		`INSERT INTO audit_events(id, actor, action, object, allowed, filter, ts) VALUES(?,?,?,?,?,?,?)`,
		e.ID, e.Actor, e.Action, e.Object, e.Allowed, e.Filter, e.Timestamp,
	)
	return err
}

// ListAuditEvents returns every audit record, oldest first.
func (d *DB) ListAuditEvents() ([]AuditEvent, error) {
	rows, err := d.db.Query(`SELECT id, actor, action, object, allowed, filter, ts FROM audit_events ORDER BY ts ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEvent
	for rows.Next() {
		var e AuditEvent
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Object, &e.Allowed, &e.Filter, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
