// Package audit persists a record of every authorization decision and
// ingest write to the bookkeeping store, for after-the-fact review of who
// read or wrote what.
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/dazzleduck/flightsql-server/internal/localdb"
)

// Event is one audit record: an identity acting on an object, and the
// outcome of that action.
type Event = localdb.AuditEvent

// Log writes an audit event for a single authorization decision or ingest
// write. A nil db is a no-op, matching the teacher's tolerance for
// running without durable storage in tests.
func Log(db *localdb.DB, actor, action, object string, allowed bool, filter string) {
	if db == nil {
		return
	}
	_ = db.InsertAuditEvent(Event{
		ID:        uuid.NewString(),
		Actor:     actor,
		Action:    action,
		Object:    object,
		Allowed:   allowed,
		Filter:    filter,
		Timestamp: time.Now().UTC(),
	})
}

// List returns every audit event recorded so far, for diagnostics.
func List(db *localdb.DB) ([]Event, error) {
	return db.ListAuditEvents()
}
