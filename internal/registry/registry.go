// Package registry implements the Handle Registry: a process-wide,
// UUID-keyed map from opaque handle id to live server-resident state
// (prepared statement, running query, ingest session), with per-entry
// locking for cancel/dispose so one slot's churn never blocks another's.
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dazzleduck/flightsql-server/internal/metrics"
	"github.com/dazzleduck/flightsql-server/internal/model"
	"github.com/dazzleduck/flightsql-server/internal/svcerr"
)

// Kind distinguishes the three handle lifetimes the spec names.
type Kind int

const (
	PreparedStatement Kind = iota
	RunningQuery
	IngestSession
)

// String names a Kind for the registry-size metric's label.
func (k Kind) String() string {
	switch k {
	case PreparedStatement:
		return "prepared_statement"
	case RunningQuery:
		return "running_query"
	case IngestSession:
		return "ingest_session"
	default:
		return "unknown"
	}
}

// CancelFunc races the entry's in-flight work; it must be safe to call
// more than once to let Entry.Cancel stay idempotent.
type CancelFunc func()

// Entry is one arena slot: an id, its owner, a cancel hook, and an
// arbitrary payload the caller defines per Kind (e.g. the engine's
// prepared-statement handle, or the cancelable engine statement).
type Entry struct {
	ID        uuid.UUID
	Kind      Kind
	Owner     model.Identity
	CreatedAt time.Time
	Payload   any

	mu       sync.Mutex
	canceled bool
	cancel   CancelFunc
}

// Cancel invokes the entry's cancel hook exactly once; later calls are a
// no-op, per the spec's cancel-idempotence property.
func (e *Entry) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.canceled {
		return
	}
	e.canceled = true
	if e.cancel != nil {
		e.cancel()
	}
}

// Canceled reports whether Cancel has already run.
func (e *Entry) Canceled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canceled
}

// Bind attaches cancel as the entry's cancel hook after the fact, for the
// case where a handle is allocated before the work it cancels exists yet
// (a running-query id is embedded in a ticket at getFlightInfo time, but
// the engine statement it cancels isn't created until getStream runs). If
// the entry was already canceled before Bind runs, cancel fires
// immediately so a cancel that arrives first still takes effect.
func (e *Entry) Bind(cancel CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancel = cancel
	if e.canceled && cancel != nil {
		cancel()
	}
}

// Registry is the arena: a UUID→*Entry index guarded by a single map lock,
// with cancellation and payload state mutated under each entry's own lock
// so a cancel on one handle never contends with a lookup or cancel on
// another.
type Registry struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*Entry
}

// New builds an empty registry.
func New() *Registry {
	return &Registry{entries: map[uuid.UUID]*Entry{}}
}

// Insert creates and stores a new entry, returning its generated id.
func (r *Registry) Insert(kind Kind, owner model.Identity, payload any, cancel CancelFunc) *Entry {
	e := &Entry{
		ID:        uuid.New(),
		Kind:      kind,
		Owner:     owner,
		CreatedAt: time.Now(),
		Payload:   payload,
		cancel:    cancel,
	}
	r.mu.Lock()
	r.entries[e.ID] = e
	r.mu.Unlock()
	metrics.RegistrySize.WithLabelValues(kind.String()).Inc()
	return e
}

// Get looks up id, verifying requester owns it. A lookup concurrent with
// Remove returns either the entry or NotFound, never a stale reference.
func (r *Registry) Get(id uuid.UUID, requester model.Identity) (*Entry, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, svcerr.New(svcerr.NotFound, "registry: no handle %s", id)
	}
	if e.Owner.User != requester.User {
		return nil, svcerr.New(svcerr.Unauthorized, "registry: handle %s not owned by %s", id, requester.User)
	}
	return e, nil
}

// Cancel looks up id (enforcing ownership) and cancels it.
func (r *Registry) Cancel(id uuid.UUID, requester model.Identity) error {
	e, err := r.Get(id, requester)
	if err != nil {
		return err
	}
	e.Cancel()
	return nil
}

// Remove disposes of id, releasing its slot. It does not itself cancel the
// entry's in-flight work; callers that need both call Cancel first.
func (r *Registry) Remove(id uuid.UUID, requester model.Identity) error {
	e, err := r.Get(id, requester)
	if err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
	metrics.RegistrySize.WithLabelValues(e.Kind.String()).Dec()
	return nil
}

// Len reports the number of live entries, used by shutdown-parity checks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
