package ast

import "fmt"

// FirstStatement returns the first top-level statement in tree.
func FirstStatement(tree Tree) (Node, error) {
	if tree.Len() == 0 {
		return nil, fmt.Errorf("ast: empty statement list")
	}
	return tree.Statements[0], nil
}

// IsSelect reports whether n is a SELECT statement node (as opposed to an
// INSERT/UPDATE/DDL node); callers that only care about SELECT-shaped
// queries use this to short-circuit.
func IsSelect(n Node) bool {
	switch nodeType(n) {
	case "select_statement", "select", "":
		// A bare node with a from_table/select_list but no recognized
		// node_type is treated as a select for tolerance of minimal fixtures.
		if _, ok := childNode(n, "from_table"); ok {
			return true
		}
		return nodeType(n) == "select_statement" || nodeType(n) == "select"
	default:
		return false
	}
}
