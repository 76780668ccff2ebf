// Package policy implements the Access Policy Store: the lookup of
// AccessRow entries that the authorizer consults to decide whether an
// identity may read a table or table-function, and with what row filter.
package policy

import (
	"strings"
	"time"

	"github.com/dazzleduck/flightsql-server/internal/model"
)

// Store resolves the first non-expired AccessRow matching (identity, obj),
// per the BASE_TABLE / TABLE_FUNCTION matching rules. ok is false when no
// row matches; callers turn that into an authorization failure.
type Store interface {
	Lookup(identity model.Identity, obj model.CatalogSchemaTable) (row model.AccessRow, ok bool)
}

// Match reports whether row matches obj under the BASE_TABLE /
// TABLE_FUNCTION rules from the access policy contract. It does not check
// expiration or principal; callers combine Match with those separately so
// the matching rule stays independently testable.
func Match(row model.AccessRow, obj model.CatalogSchemaTable) bool {
	switch obj.Type {
	case model.BaseTable:
		if row.ObjectKind != model.BaseTable {
			return false
		}
		if row.Database != obj.Catalog || row.Schema != obj.Schema {
			return false
		}
		return hasAccessToTable(row.TableOrPath, obj.TableOrPath)
	case model.TableFunction:
		if row.ObjectKind != model.TableFunction {
			return false
		}
		if row.TableOrPath != "" && isPathPrefix(row.TableOrPath, obj.TableOrPath) {
			return true
		}
		if row.FunctionName != "" && row.FunctionName == obj.FunctionName {
			return true
		}
		return false
	default:
		return false
	}
}

// hasAccessToTable matches an exact table name or a glob-like "prefix*"
// pattern against a concrete table name.
func hasAccessToTable(pattern, table string) bool {
	if pattern == table {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(table, strings.TrimSuffix(pattern, "*"))
	}
	return false
}

// isPathPrefix reports whether pattern names a directory/glob root that
// path falls under. Both an exact path and a glob whose literal prefix
// (everything before the first wildcard character) matches count.
func isPathPrefix(pattern, path string) bool {
	if pattern == path {
		return true
	}
	root := pattern
	if i := strings.IndexAny(pattern, "*?["); i >= 0 {
		root = pattern[:i]
	}
	root = strings.TrimSuffix(root, "/")
	return root != "" && strings.HasPrefix(path, root)
}

func lookupIn(rows []model.AccessRow, identity model.Identity, obj model.CatalogSchemaTable, now time.Time) (model.AccessRow, bool) {
	principals := make(map[string]struct{}, len(identity.Principals()))
	for _, p := range identity.Principals() {
		principals[p] = struct{}{}
	}
	for _, row := range rows {
		if _, ok := principals[row.Principal]; !ok {
			continue
		}
		if row.Expired(now) {
			continue
		}
		if Match(row, obj) {
			return row, true
		}
	}
	return model.AccessRow{}, false
}
