package producer

import "fmt"

// catalogsSQL, schemasSQL, and tablesSQL answer getCatalogs/getSchemas/
// getTables (§4.6) by querying DuckDB's own system catalog functions
// rather than hand-maintained metadata, so the result always reflects
// whatever databases/schemas/tables the engine currently has attached.
func catalogsSQL() string {
	return `SELECT database_name AS catalog_name FROM duckdb_databases() WHERE NOT internal ORDER BY database_name`
}

func schemasSQL(catalog string) string {
	if catalog == "" {
		return `SELECT database_name AS catalog_name, schema_name FROM duckdb_schemas() WHERE NOT internal ORDER BY database_name, schema_name`
	}
	return fmt.Sprintf(
		`SELECT database_name AS catalog_name, schema_name FROM duckdb_schemas() WHERE NOT internal AND database_name = %s ORDER BY schema_name`,
		quoteLiteral(catalog),
	)
}

func tablesSQL(catalog, schema string) string {
	where := "NOT internal"
	if catalog != "" {
		where += fmt.Sprintf(" AND database_name = %s", quoteLiteral(catalog))
	}
	if schema != "" {
		where += fmt.Sprintf(" AND schema_name = %s", quoteLiteral(schema))
	}
	return fmt.Sprintf(
		`SELECT database_name AS catalog_name, schema_name, table_name, table_type FROM duckdb_tables() WHERE %s ORDER BY database_name, schema_name, table_name`,
		where,
	)
}

// quoteLiteral escapes a SQL string literal by doubling embedded quotes;
// catalog/schema names come from the database/schema headers (§6), not
// arbitrary user SQL text, but are quoted defensively all the same.
func quoteLiteral(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\'')
			continue
		}
		out = append(out, s[i])
	}
	out = append(out, '\'')
	return string(out)
}
