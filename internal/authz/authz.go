// Package authz implements the Authorizer: the single operation that turns
// an identity, a target database/schema, and a parsed query into either a
// rewritten, policy-compliant tree or an Unauthorized failure.
package authz

import (
	"github.com/dazzleduck/flightsql-server/internal/ast"
	"github.com/dazzleduck/flightsql-server/internal/model"
	"github.com/dazzleduck/flightsql-server/internal/policy"
	"github.com/dazzleduck/flightsql-server/internal/svcerr"
)

// Mode selects whether the authorizer enforces the policy store
// (Restricted) or trusts the caller outright (Complete).
type Mode int

const (
	Restricted Mode = iota
	Complete
)

// HiveInspector discovers partition-column types for a Hive-laid-out
// read_parquet invocation by inspecting the warehouse filesystem. It is
// the one impure collaborator the Authorizer holds; the ast package itself
// never does I/O.
type HiveInspector interface {
	Inspect(pathGlob string) (*ast.HivePartitionHint, error)
}

// Authorizer implements spec step 4.3: authorize(identity, db, schema, tree).
type Authorizer struct {
	Store policy.Store
	Mode  Mode
	Hive  HiveInspector
}

// New builds a restricted-mode Authorizer. Use the Mode field directly to
// switch to Complete for a trusted caller class.
func New(store policy.Store, hive HiveInspector) *Authorizer {
	return &Authorizer{Store: store, Mode: Restricted, Hive: hive}
}

// Authorize runs the six-step algorithm: locate the first statement,
// extract every table/path reference, require a policy match for each,
// remember the first filter-carrying match, stamp the default
// database/schema, and apply that one filter if any was found.
func (a *Authorizer) Authorize(identity model.Identity, db, schema string, tree ast.Tree) (ast.Tree, error) {
	stmt, err := ast.FirstStatement(tree)
	if err != nil {
		return ast.Tree{}, svcerr.Wrap(svcerr.BadRequest, err, "authz: cannot locate statement")
	}

	if a.Mode == Complete {
		return ast.WithUpdatedDatabaseSchema(tree, db, schema), nil
	}

	refs := ast.AllTablesOrPaths(stmt, db, schema)
	if len(refs) == 0 {
		return ast.Tree{}, svcerr.New(svcerr.BadRequest, "authz: no table or path found in query")
	}

	var (
		filterRow   model.AccessRow
		filterRef   model.CatalogSchemaTable
		haveFilter  bool
	)
	for _, ref := range refs {
		row, ok := a.Store.Lookup(identity, ref)
		if !ok {
			return ast.Tree{}, svcerr.New(svcerr.Unauthorized, "not authorized to read %q", ref.Name())
		}
		if !haveFilter && row.HasFilter() {
			filterRow, filterRef, haveFilter = row, ref, true
		}
	}

	rewritten := ast.WithUpdatedDatabaseSchema(tree, db, schema)
	if !haveFilter {
		return rewritten, nil
	}

	compiled := ast.CompileFilterString(filterRow.Filter)
	switch filterRef.Type {
	case model.BaseTable:
		return ast.AddFilterToBaseTable(rewritten, compiled), nil
	case model.TableFunction:
		hint, err := a.hiveHint(filterRef)
		if err != nil {
			return ast.Tree{}, err
		}
		return ast.AddFilterToTableFunction(rewritten, compiled, hint), nil
	default:
		return ast.Tree{}, svcerr.New(svcerr.Internal, "authz: unrecognized reference kind %v", filterRef.Type)
	}
}

func (a *Authorizer) hiveHint(ref model.CatalogSchemaTable) (*ast.HivePartitionHint, error) {
	if ref.FunctionName != "read_parquet" || a.Hive == nil {
		return nil, nil
	}
	hint, err := a.Hive.Inspect(ref.TableOrPath)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.NotFound, err, "authz: could not inspect hive layout for %q", ref.TableOrPath)
	}
	return hint, nil
}
