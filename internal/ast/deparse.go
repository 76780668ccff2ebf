package ast

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Deparse turns tree back into SQL text the embedded engine can execute.
// It is the inverse of Parse over the same node shapes, including the
// ones Parse never itself produces but the rewrite helpers in this
// package do (subquery_ref wrappers, and_expr/raw_predicate filters).
func Deparse(tree Tree) (string, error) {
	if tree.Len() == 0 {
		return "", fmt.Errorf("ast: deparse: empty tree")
	}
	return deparseStatement(tree.Statements[0])
}

func deparseStatement(n Node) (string, error) {
	var b strings.Builder
	if ctes := childSlice(n, "cte_list"); len(ctes) > 0 {
		b.WriteString("WITH ")
		for i, cte := range ctes {
			if i > 0 {
				b.WriteString(", ")
			}
			body, _ := childNode(cte, "query")
			bodySQL, err := deparseStatement(body)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "%s AS (%s)", stringField(cte, "name"), bodySQL)
		}
		b.WriteString(" ")
	}

	b.WriteString("SELECT ")
	items := childSlice(n, "select_list")
	if len(items) == 0 {
		b.WriteString("*")
	} else {
		parts := make([]string, len(items))
		for i, it := range items {
			parts[i] = deparseSelectItem(it)
		}
		b.WriteString(strings.Join(parts, ", "))
	}

	from, ok := childNode(n, "from_table")
	if !ok {
		return "", fmt.Errorf("ast: deparse: statement has no from_table")
	}
	fromSQL, err := deparseFromClause(from)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&b, " FROM %s", fromSQL)

	if where, ok := childNode(n, "where_clause"); ok {
		whereSQL, err := deparseExpr(where)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, " WHERE %s", whereSQL)
	}
	return b.String(), nil
}

func deparseSelectItem(n Node) string {
	switch nodeType(n) {
	case "star":
		return "*"
	case "column_ref":
		return stringField(n, "name")
	default:
		return "*"
	}
}

func deparseFromClause(n Node) (string, error) {
	switch nodeType(n) {
	case "base_table_ref":
		name := stringField(n, "table_name")
		if cat, sch := stringField(n, "catalog"), stringField(n, "schema"); cat != "" || sch != "" {
			if cat != "" {
				name = cat + "." + sch + "." + name
			} else {
				name = sch + "." + name
			}
		}
		return name, nil
	case "table_function_ref":
		args := childSlice(n, "arguments")
		parts := make([]string, len(args))
		for i, a := range args {
			s, err := deparseArgument(a)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return fmt.Sprintf("%s(%s)", stringField(n, "function_name"), strings.Join(parts, ", ")), nil
	case "join_ref":
		l, _ := childNode(n, "left")
		r, _ := childNode(n, "right")
		lSQL, err := deparseFromClause(l)
		if err != nil {
			return "", err
		}
		rSQL, err := deparseFromClause(r)
		if err != nil {
			return "", err
		}
		out := fmt.Sprintf("%s JOIN %s", lSQL, rSQL)
		if on, ok := childNode(n, "on"); ok && on != nil {
			onSQL, err := deparseExpr(on)
			if err != nil {
				return "", err
			}
			out += " ON " + onSQL
		}
		return out, nil
	case "subquery_ref":
		sq, _ := childNode(n, "subquery")
		sqSQL, err := deparseStatement(sq)
		if err != nil {
			return "", err
		}
		alias := stringField(n, "alias")
		if alias == "" {
			alias = "t"
		}
		return fmt.Sprintf("(%s) AS %s", sqSQL, alias), nil
	default:
		return "", fmt.Errorf("ast: deparse: unrecognized from-clause node %q", nodeType(n))
	}
}

func deparseArgument(n Node) (string, error) {
	switch nodeType(n) {
	case "string_literal":
		v, _ := n["value"].(string)
		return "'" + strings.ReplaceAll(v, "'", "''") + "'", nil
	case "literal":
		return deparseLiteralValue(n["value"]), nil
	case "named_argument":
		v, err := deparseNamedValue(n["value"])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %s", stringField(n, "name"), v), nil
	default:
		return "", fmt.Errorf("ast: deparse: unrecognized argument node %q", nodeType(n))
	}
}

func deparseLiteralValue(v any) string {
	switch x := v.(type) {
	case RawIdent:
		return string(x)
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func deparseNamedValue(v any) (string, error) {
	switch x := v.(type) {
	case RawIdent:
		return string(x), nil
	case bool:
		return strconv.FormatBool(x), nil
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'", nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("'%s': %s", k, deparseLiteralValue(x[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}", nil
	default:
		return "", fmt.Errorf("ast: deparse: unsupported named-argument value %T", v)
	}
}

func deparseExpr(n Node) (string, error) {
	switch nodeType(n) {
	case "raw_predicate":
		return stringField(n, "sql"), nil
	case "and_expr":
		l, _ := childNode(n, "left")
		r, _ := childNode(n, "right")
		lSQL, err := deparseExpr(l)
		if err != nil {
			return "", err
		}
		rSQL, err := deparseExpr(r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s) AND (%s)", lSQL, rSQL), nil
	default:
		return "", fmt.Errorf("ast: deparse: unrecognized expression node %q", nodeType(n))
	}
}
