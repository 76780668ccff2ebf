package producer

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// dataSchemaCoercion is the decoded form of the data-schema header (§6.2):
// the column alias and DuckDB cast type a single-scalar result should be
// coerced to before it reaches the client.
type dataSchemaCoercion struct {
	name     string
	duckType string
}

// arrowNameToDuckType maps the Arrow-ish type names a data-schema header
// may carry to the DuckDB cast keyword producing that storage type.
var arrowNameToDuckType = map[string]string{
	"int8": "TINYINT", "int16": "SMALLINT", "int32": "INTEGER", "int64": "BIGINT",
	"uint32": "UINTEGER", "uint64": "UBIGINT",
	"float32": "FLOAT", "float64": "DOUBLE",
	"bool": "BOOLEAN", "boolean": "BOOLEAN",
	"date32":    "DATE",
	"timestamp": "TIMESTAMP",
	"utf8":      "VARCHAR", "string": "VARCHAR",
}

// parseDataSchemaHeader reads and decodes the data-schema header, a
// URL-encoded "name:arrowtype" pair. A missing header, an unparseable
// value, or an unrecognized type name all report ok == false rather than
// an error: coercion is best-effort sugar, never a reason to fail a query.
func parseDataSchemaHeader(ctx context.Context) (dataSchemaCoercion, bool) {
	raw, ok := headerValue(ctx, "data-schema")
	if !ok {
		return dataSchemaCoercion{}, false
	}
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return dataSchemaCoercion{}, false
	}
	name, typ, found := strings.Cut(decoded, ":")
	if !found || name == "" || typ == "" {
		return dataSchemaCoercion{}, false
	}
	duckType, ok := arrowNameToDuckType[strings.ToLower(typ)]
	if !ok {
		return dataSchemaCoercion{}, false
	}
	return dataSchemaCoercion{name: name, duckType: duckType}, true
}

// applyScalarCoercion wraps sqlOut so its single result column is cast to
// coercion's type, for a statement expected to yield one row and one
// column. The subquery alias list names that column before the cast reads
// it back, so this works regardless of the original column's name.
func applyScalarCoercion(sqlOut string, coercion dataSchemaCoercion) string {
	return fmt.Sprintf(
		"SELECT CAST(__flightsql_scalar__ AS %s) AS %s FROM (%s) AS __flightsql_scalar_wrap__(__flightsql_scalar__)",
		coercion.duckType, quoteIdent(coercion.name), sqlOut,
	)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
