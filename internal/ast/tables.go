package ast

import "github.com/dazzleduck/flightsql-server/internal/model"

// AllTablesOrPaths walks every FROM / join / subquery / CTE body reachable
// from selectNode and returns every base-table reference and table-function
// invocation it finds, substituting unqualified names with defaultDB /
// defaultSchema. CTE aliases are recognized and excluded from the result
// (they name a derived relation, not a catalog object).
func AllTablesOrPaths(selectNode Node, defaultDB, defaultSchema string) []model.CatalogSchemaTable {
	cteNames := map[string]bool{}
	collectCTENames(selectNode, cteNames)

	var out []model.CatalogSchemaTable
	walkSelect(selectNode, defaultDB, defaultSchema, &out, cteNames)
	return out
}

func walkSelect(n Node, defaultDB, defaultSchema string, out *[]model.CatalogSchemaTable, cteNames map[string]bool) {
	if n == nil {
		return
	}
	for _, cte := range childSlice(n, "cte_list") {
		if body, ok := childNode(cte, "query"); ok {
			walkSelect(body, defaultDB, defaultSchema, out, cteNames)
		}
	}
	from, ok := childNode(n, "from_table")
	if !ok {
		return
	}
	walkFromClause(from, defaultDB, defaultSchema, out, cteNames)
}

func walkFromClause(n Node, defaultDB, defaultSchema string, out *[]model.CatalogSchemaTable, cteNames map[string]bool) {
	if n == nil {
		return
	}
	switch nodeType(n) {
	case "base_table_ref":
		name := stringField(n, "table_name")
		if cteNames[name] {
			return
		}
		cat := stringField(n, "catalog")
		sch := stringField(n, "schema")
		if sch == "" {
			sch = defaultSchema
		}
		if cat == "" {
			cat = defaultDB
		}
		*out = append(*out, model.CatalogSchemaTable{
			Catalog: cat, Schema: sch, TableOrPath: name, Type: model.BaseTable,
		})
	case "table_function_ref":
		*out = append(*out, tableFunctionRef(n))
	case "join_ref":
		if l, ok := childNode(n, "left"); ok {
			walkFromClause(l, defaultDB, defaultSchema, out, cteNames)
		}
		if r, ok := childNode(n, "right"); ok {
			walkFromClause(r, defaultDB, defaultSchema, out, cteNames)
		}
	case "subquery_ref":
		if sq, ok := childNode(n, "subquery"); ok {
			walkSelect(sq, defaultDB, defaultSchema, out, cteNames)
		}
	}
}

func collectCTENames(n Node, into map[string]bool) {
	if n == nil {
		return
	}
	for _, cte := range childSlice(n, "cte_list") {
		if name := stringField(cte, "name"); name != "" {
			into[name] = true
		}
		if body, ok := childNode(cte, "query"); ok {
			collectCTENames(body, into)
		}
	}
	if from, ok := childNode(n, "from_table"); ok {
		collectCTENamesFromClause(from, into)
	}
}

func collectCTENamesFromClause(n Node, into map[string]bool) {
	if n == nil {
		return
	}
	switch nodeType(n) {
	case "join_ref":
		if l, ok := childNode(n, "left"); ok {
			collectCTENamesFromClause(l, into)
		}
		if r, ok := childNode(n, "right"); ok {
			collectCTENamesFromClause(r, into)
		}
	case "subquery_ref":
		if sq, ok := childNode(n, "subquery"); ok {
			collectCTENames(sq, into)
		}
	}
}

func tableFunctionRef(n Node) model.CatalogSchemaTable {
	fn := stringField(n, "function_name")
	path := ""
	hivePart := false
	hiveTypes := map[string]string{}
	for _, arg := range childSlice(n, "arguments") {
		switch nodeType(arg) {
		case "string_literal":
			if path == "" {
				if v, ok := arg["value"].(string); ok {
					path = v
				}
			}
		case "named_argument":
			name := stringField(arg, "name")
			switch name {
			case "hive_partitioning":
				if v, ok := arg["value"]; ok {
					if b, ok := v.(bool); ok {
						hivePart = b
					}
				}
			case "hive_types":
				if v, ok := arg["value"]; ok {
					if m, ok := v.(map[string]any); ok {
						for k, vv := range m {
							switch s := vv.(type) {
							case RawIdent:
								hiveTypes[k] = string(s)
							case string:
								hiveTypes[k] = s
							}
						}
					}
				}
			}
		}
	}
	return model.CatalogSchemaTable{
		TableOrPath:      path,
		Type:             model.TableFunction,
		FunctionName:     fn,
		HivePartitioning: hivePart,
		HiveTypes:        hiveTypes,
	}
}
