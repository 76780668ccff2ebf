package ast

// HivePartitionHint carries partition-column types discovered (by I/O,
// outside this package) for a Hive-laid-out read_parquet invocation. It is
// passed in rather than inferred here so that this package stays pure.
type HivePartitionHint struct {
	Types map[string]string
}

// WithUpdatedDatabaseSchema returns a new tree with every unqualified base
// table reference in the first statement stamped with db/schema, so that
// downstream rewrites operate on an unambiguous tree.
func WithUpdatedDatabaseSchema(tree Tree, db, schema string) Tree {
	if tree.Len() == 0 {
		return tree
	}
	out := Tree{Statements: append([]Node(nil), tree.Statements...)}
	out.Statements[0] = stampSelect(deepClone(tree.Statements[0]), db, schema)
	return out
}

func stampSelect(n Node, db, schema string) Node {
	if n == nil {
		return n
	}
	for _, cte := range childSlice(n, "cte_list") {
		if body, ok := childNode(cte, "query"); ok {
			cte["query"] = stampSelect(body, db, schema)
		}
	}
	if from, ok := childNode(n, "from_table"); ok {
		n["from_table"] = stampFromClause(from, db, schema)
	}
	return n
}

func stampFromClause(n Node, db, schema string) Node {
	if n == nil {
		return n
	}
	switch nodeType(n) {
	case "base_table_ref":
		if stringField(n, "catalog") == "" {
			n["catalog"] = db
		}
		if stringField(n, "schema") == "" {
			n["schema"] = schema
		}
	case "join_ref":
		if l, ok := childNode(n, "left"); ok {
			n["left"] = stampFromClause(l, db, schema)
		}
		if r, ok := childNode(n, "right"); ok {
			n["right"] = stampFromClause(r, db, schema)
		}
	case "subquery_ref":
		if sq, ok := childNode(n, "subquery"); ok {
			n["subquery"] = stampSelect(sq, db, schema)
		}
	}
	return n
}

// AddFilterToBaseTable wraps the first base-table reference reachable from
// the tree's first statement in a derived-table subquery adding
// WHERE compiledFilter, AND-combined with any predicate already present at
// that scope.
func AddFilterToBaseTable(tree Tree, compiledFilter Node) Tree {
	if tree.Len() == 0 {
		return tree
	}
	out := Tree{Statements: append([]Node(nil), tree.Statements...)}
	stmt := deepClone(tree.Statements[0])
	rewriteFirst(stmt, compiledFilter, nil, isBaseTableRef)
	out.Statements[0] = stmt
	return out
}

// AddFilterToTableFunction wraps the first table-function reference
// reachable from the tree's first statement the same way AddFilterToBaseTable
// does for base tables. When hint is non-nil and the function is
// read_parquet, hive_partitioning/hive_types named arguments are injected
// into the function call if not already present.
func AddFilterToTableFunction(tree Tree, compiledFilter Node, hint *HivePartitionHint) Tree {
	if tree.Len() == 0 {
		return tree
	}
	out := Tree{Statements: append([]Node(nil), tree.Statements...)}
	stmt := deepClone(tree.Statements[0])
	rewriteFirst(stmt, compiledFilter, hint, isTableFunctionRef)
	out.Statements[0] = stmt
	return out
}

func isBaseTableRef(n Node) bool     { return nodeType(n) == "base_table_ref" }
func isTableFunctionRef(n Node) bool { return nodeType(n) == "table_function_ref" }

// rewriteFirst finds the first from-clause node (DFS through joins and
// subqueries) matching `match`, and replaces it in place with a
// derived-table subquery applying filter (and, for table functions, the
// Hive hint). If the match already sits directly under a subquery_ref with
// its own where_clause, the filter is AND-combined into that where_clause
// instead of adding another wrapping layer.
func rewriteFirst(stmt Node, filter Node, hint *HivePartitionHint, match func(Node) bool) bool {
	for _, cte := range childSlice(stmt, "cte_list") {
		if body, ok := childNode(cte, "query"); ok {
			if rewriteFirst(body, filter, hint, match) {
				return true
			}
		}
	}
	from, ok := childNode(stmt, "from_table")
	if !ok {
		return false
	}
	newFrom, done := rewriteFromClause(from, filter, hint, match)
	if done {
		stmt["from_table"] = newFrom
	}
	return done
}

func rewriteFromClause(n Node, filter Node, hint *HivePartitionHint, match func(Node) bool) (Node, bool) {
	if n == nil {
		return n, false
	}
	if match(n) {
		if hint != nil && nodeType(n) == "table_function_ref" {
			n = injectHiveArgs(n, hint)
		}
		wrapped := Node{
			"node_type": "subquery_ref",
			"alias":     aliasFor(n),
			"subquery": Node{
				"node_type":    "select_statement",
				"select_list":  []Node{{"node_type": "star"}},
				"from_table":   n,
				"where_clause": filter,
			},
		}
		return wrapped, true
	}
	switch nodeType(n) {
	case "join_ref":
		if l, ok := childNode(n, "left"); ok {
			if nl, done := rewriteFromClause(l, filter, hint, match); done {
				n["left"] = nl
				return n, true
			}
		}
		if r, ok := childNode(n, "right"); ok {
			if nr, done := rewriteFromClause(r, filter, hint, match); done {
				n["right"] = nr
				return n, true
			}
		}
	case "subquery_ref":
		if sq, ok := childNode(n, "subquery"); ok {
			if existingWhere, hasWhere := childNode(sq, "where_clause"); hasWhere && sqDirectlyWraps(sq, match) {
				sq["where_clause"] = AndCombine(existingWhere, filter)
				n["subquery"] = sq
				return n, true
			}
			if rewriteFirst(sq, filter, hint, match) {
				n["subquery"] = sq
				return n, true
			}
		}
	}
	return n, false
}

// sqDirectlyWraps reports whether sq's own from_table is itself the kind of
// node match() looks for, i.e. the subquery is already scoped to exactly
// the table/function we'd otherwise wrap again.
func sqDirectlyWraps(sq Node, match func(Node) bool) bool {
	from, ok := childNode(sq, "from_table")
	if !ok {
		return false
	}
	return match(from)
}

func aliasFor(n Node) string {
	if a := stringField(n, "table_name"); a != "" {
		return a
	}
	if a := stringField(n, "function_name"); a != "" {
		return a
	}
	return "t"
}

func injectHiveArgs(n Node, hint *HivePartitionHint) Node {
	if stringField(n, "function_name") != "read_parquet" {
		return n
	}
	args := childSlice(n, "arguments")
	hasPartitioning, hasTypes := false, false
	for _, a := range args {
		if nodeType(a) == "named_argument" {
			switch stringField(a, "name") {
			case "hive_partitioning":
				hasPartitioning = true
			case "hive_types":
				hasTypes = true
			}
		}
	}
	out := n
	newArgs := append([]Node(nil), args...)
	if !hasPartitioning {
		newArgs = append(newArgs, Node{"node_type": "named_argument", "name": "hive_partitioning", "value": true})
	}
	if !hasTypes && len(hint.Types) > 0 {
		typesAny := make(map[string]any, len(hint.Types))
		for k, v := range hint.Types {
			typesAny[k] = RawIdent(v)
		}
		newArgs = append(newArgs, Node{"node_type": "named_argument", "name": "hive_types", "value": typesAny})
	}
	out["arguments"] = newArgs
	return out
}

func deepClone(n Node) Node {
	if n == nil {
		return nil
	}
	out := make(Node, len(n))
	for k, v := range n {
		switch x := v.(type) {
		case Node:
			out[k] = deepClone(x)
		case map[string]any:
			// Keep the plain map type: a hive_types value is a map[string]any,
			// and Deparse/AllTablesOrPaths only recognize it as such.
			out[k] = map[string]any(deepClone(Node(x)))
		case []Node:
			arr := make([]Node, len(x))
			for i, it := range x {
				arr[i] = deepClone(it)
			}
			out[k] = arr
		case []any:
			arr := make([]any, len(x))
			for i, it := range x {
				switch y := it.(type) {
				case Node:
					arr[i] = deepClone(y)
				case map[string]any:
					arr[i] = map[string]any(deepClone(Node(y)))
				default:
					arr[i] = it
				}
			}
			out[k] = arr
		default:
			out[k] = v
		}
	}
	return out
}
