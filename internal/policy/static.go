package policy

import (
	"sync"
	"time"

	"github.com/dazzleduck/flightsql-server/internal/model"
)

// StaticStore is a policy store loaded once from configuration at startup:
// a flat list of AccessRows. It holds no user→groups map; group principals
// are matched only against the groups the caller's Identity already
// carries (its token's groups claim), and the configuration's user-groups
// section is not consulted. It never mutates after construction
// except through Reload, which callers may use to swap the row set
// atomically; no hot-reload path currently calls it.
type StaticStore struct {
	mu   sync.RWMutex
	rows []model.AccessRow
	now  func() time.Time
}

// NewStaticStore builds a StaticStore from a flat AccessRow list.
func NewStaticStore(rows []model.AccessRow) *StaticStore {
	return &StaticStore{rows: append([]model.AccessRow(nil), rows...), now: time.Now}
}

// Reload atomically replaces the row set. Not wired to any config-watch
// path today; exposed for callers (tests, or a future reload trigger) that
// need to swap rows without reconstructing the store.
func (s *StaticStore) Reload(rows []model.AccessRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append([]model.AccessRow(nil), rows...)
}

func (s *StaticStore) Lookup(identity model.Identity, obj model.CatalogSchemaTable) (model.AccessRow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookupIn(s.rows, identity, obj, s.now())
}
