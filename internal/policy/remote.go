package policy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dazzleduck/flightsql-server/internal/model"
)

// resolveDocument is the body a resolve endpoint must return.
type resolveDocument struct {
	Tables    []model.AccessRow `json:"tables"`
	Functions []model.AccessRow `json:"functions"`
	Version   string            `json:"version"`
}

// RemoteStore resolves access rows by calling out to a configured URL with
// the caller's own bearer token on every authorization decision. Per the
// redirect-token contract, a network error or non-200 response is always
// authorization failure, never an implicit allow, and nothing is cached
// across calls.
type RemoteStore struct {
	ResolveURL string
	Client     *http.Client
}

// NewRemoteStore builds a RemoteStore that GETs resolveURL on every lookup.
func NewRemoteStore(resolveURL string) *RemoteStore {
	return &RemoteStore{ResolveURL: resolveURL, Client: &http.Client{Timeout: 10 * time.Second}}
}

// Lookup requires identity.VerifiedClaims["redirect_token"] to carry the
// bearer token obtained at authentication time; it is the caller's
// responsibility to have populated that claim when token_type=redirect.
func (s *RemoteStore) Lookup(identity model.Identity, obj model.CatalogSchemaTable) (model.AccessRow, bool) {
	token := identity.VerifiedClaims["redirect_token"]
	req, err := http.NewRequest(http.MethodGet, s.ResolveURL, nil)
	if err != nil {
		return model.AccessRow{}, false
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))

	resp, err := s.Client.Do(req)
	if err != nil {
		return model.AccessRow{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.AccessRow{}, false
	}

	var doc resolveDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return model.AccessRow{}, false
	}

	rows := make([]model.AccessRow, 0, len(doc.Tables)+len(doc.Functions))
	rows = append(rows, doc.Tables...)
	rows = append(rows, doc.Functions...)
	return lookupIn(rows, identity, obj, time.Now())
}
