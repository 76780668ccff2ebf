package engine

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/dazzleduck/flightsql-server/internal/svcerr"
)

// DefaultFetchSize is the batch size used when a caller doesn't specify
// one, matching the "typically much higher in production" note.
const DefaultFetchSize = 4096

// DuckDBPool drives an embedded DuckDB database via database/sql. A single
// *sql.DB is shared by every Prepare call; DuckDB's own driver handles
// connection pooling and serializes writers internally.
type DuckDBPool struct {
	db *sql.DB
}

// OpenDuckDB opens (or creates) the database file at path. path == ":memory:"
// opens an in-process, non-persistent database.
func OpenDuckDB(path string) (*DuckDBPool, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.EngineFailure, err, "engine: opening duckdb at %q", path)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, svcerr.Wrap(svcerr.EngineFailure, err, "engine: pinging duckdb at %q", path)
	}
	return &DuckDBPool{db: db}, nil
}

func (p *DuckDBPool) Close() error { return p.db.Close() }

func (p *DuckDBPool) Prepare(ctx context.Context, sqlText string) (Statement, error) {
	return &duckStatement{pool: p, sql: sqlText}, nil
}

// duckStatement defers all engine interaction to Schema/Execute: Prepare
// itself never touches the database, matching the "schema obtained
// without executing" requirement.
type duckStatement struct {
	pool *DuckDBPool
	sql  string

	mu        sync.Mutex
	cancelled bool
	cancel    context.CancelFunc
}

// Schema runs sql wrapped so zero rows are ever materialized, deriving the
// result's column set and types without the caller observing any row data
// or side effects a real execution would have.
func (s *duckStatement) Schema(ctx context.Context) (*arrow.Schema, error) {
	probe := fmt.Sprintf("SELECT * FROM (%s) AS __schema_probe__ WHERE 1=0", s.sql)
	rows, err := s.pool.db.QueryContext(ctx, probe)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.EngineFailure, err, "engine: describing statement")
	}
	defer rows.Close()
	return schemaFromRows(rows)
}

func (s *duckStatement) Execute(ctx context.Context, fetchSize int) (BatchReader, error) {
	if fetchSize <= 0 {
		fetchSize = DefaultFetchSize
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		cancel()
		return nil, svcerr.New(svcerr.Cancelled, "engine: statement already cancelled")
	}
	s.cancel = cancel
	s.mu.Unlock()

	rows, err := s.pool.db.QueryContext(runCtx, s.sql)
	if err != nil {
		cancel()
		return nil, svcerr.Wrap(svcerr.EngineFailure, err, "engine: executing statement")
	}
	schema, err := schemaFromRows(rows)
	if err != nil {
		rows.Close()
		cancel()
		return nil, err
	}
	return &duckBatchReader{rows: rows, schema: schema, fetchSize: fetchSize, cancel: cancel}, nil
}

// Cancel is idempotent: the registry already guards against concurrent
// double-cancel, but Statement must tolerate it independently too.
func (s *duckStatement) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return
	}
	s.cancelled = true
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *duckStatement) Close() error {
	s.Cancel()
	return nil
}

type duckBatchReader struct {
	rows      *sql.Rows
	schema    *arrow.Schema
	fetchSize int
	cancel    context.CancelFunc
}

func (r *duckBatchReader) Schema() *arrow.Schema { return r.schema }

func (r *duckBatchReader) Next(ctx context.Context) (arrow.Record, error) {
	cols := len(r.schema.Fields())
	builder := array.NewRecordBuilder(memory.DefaultAllocator, r.schema)
	defer builder.Release()

	scanDest := make([]any, cols)
	raw := make([]sql.NullString, cols)
	for i := range raw {
		scanDest[i] = &raw[i]
	}

	n := 0
	for n < r.fetchSize {
		select {
		case <-ctx.Done():
			return nil, svcerr.Wrap(svcerr.Cancelled, ctx.Err(), "engine: stream cancelled")
		default:
		}
		if !r.rows.Next() {
			break
		}
		if err := r.rows.Scan(scanDest...); err != nil {
			return nil, svcerr.Wrap(svcerr.EngineFailure, err, "engine: scanning row")
		}
		for i, v := range raw {
			field := builder.Field(i)
			if !v.Valid {
				field.AppendNull()
				continue
			}
			if err := field.AppendValueFromString(v.String); err != nil {
				return nil, svcerr.Wrap(svcerr.EngineFailure, err, "engine: decoding column %q", r.schema.Field(i).Name)
			}
		}
		n++
	}
	if n == 0 {
		if err := r.rows.Err(); err != nil {
			return nil, svcerr.Wrap(svcerr.EngineFailure, err, "engine: reading rows")
		}
		return nil, nil
	}
	return builder.NewRecord(), nil
}

func (r *duckBatchReader) Close() {
	r.rows.Close()
	if r.cancel != nil {
		r.cancel()
	}
}

func schemaFromRows(rows *sql.Rows) (*arrow.Schema, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, svcerr.Wrap(svcerr.EngineFailure, err, "engine: reading column types")
	}
	fields := make([]arrow.Field, len(colTypes))
	for i, ct := range colTypes {
		nullable, _ := ct.Nullable()
		fields[i] = arrow.Field{Name: ct.Name(), Type: arrowTypeFor(ct.DatabaseTypeName()), Nullable: nullable}
	}
	return arrow.NewSchema(fields, nil), nil
}

func arrowTypeFor(duckdbType string) arrow.DataType {
	switch duckdbType {
	case "BIGINT", "HUGEINT":
		return arrow.PrimitiveTypes.Int64
	case "INTEGER":
		return arrow.PrimitiveTypes.Int32
	case "SMALLINT":
		return arrow.PrimitiveTypes.Int16
	case "TINYINT":
		return arrow.PrimitiveTypes.Int8
	case "UBIGINT":
		return arrow.PrimitiveTypes.Uint64
	case "UINTEGER":
		return arrow.PrimitiveTypes.Uint32
	case "DOUBLE":
		return arrow.PrimitiveTypes.Float64
	case "FLOAT":
		return arrow.PrimitiveTypes.Float32
	case "BOOLEAN":
		return arrow.FixedWidthTypes.Boolean
	case "DATE":
		return arrow.FixedWidthTypes.Date32
	case "TIMESTAMP", "TIMESTAMP_S", "TIMESTAMP_MS", "TIMESTAMP_NS":
		return arrow.FixedWidthTypes.Timestamp_us
	default:
		return arrow.BinaryTypes.String
	}
}
