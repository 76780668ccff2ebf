// Package warehouse implements the ingest path: writing client-supplied
// Arrow batches to a Parquet file under the configured warehouse root,
// at-most-once per path.
package warehouse

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/parquet-go/parquet-go"

	"github.com/dazzleduck/flightsql-server/internal/svcerr"
)

// Warehouse roots every ingest write under a single directory and refuses
// to overwrite an existing file, per the at-most-once-per-path contract.
type Warehouse struct {
	root string
}

// New builds a Warehouse rooted at root, creating it if necessary.
func New(root string) (*Warehouse, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, svcerr.Wrap(svcerr.Internal, err, "warehouse: creating root %q", root)
	}
	return &Warehouse{root: root}, nil
}

// Resolve validates that relPath stays under the warehouse root and
// returns the absolute filesystem path it maps to.
func (w *Warehouse) Resolve(relPath string) (string, error) {
	cleaned := filepath.Clean("/" + relPath)[1:]
	if cleaned == "" || strings.HasPrefix(cleaned, "..") {
		return "", svcerr.New(svcerr.BadRequest, "warehouse: invalid ingest path %q", relPath)
	}
	return filepath.Join(w.root, cleaned), nil
}

// IngestSession accumulates Arrow record batches for a single ingest call
// and writes them to a Parquet file on Commit, only if the target path did
// not already exist when the session opened.
type IngestSession struct {
	path    string
	schema  *arrow.Schema
	records []arrow.Record
}

// BeginIngest opens a new session for relPath, failing with Conflict if
// the target file already exists.
func (w *Warehouse) BeginIngest(relPath string, schema *arrow.Schema) (*IngestSession, error) {
	abs, err := w.Resolve(relPath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err == nil {
		return nil, svcerr.New(svcerr.Conflict, "warehouse: ingest path %q already exists", relPath)
	} else if !os.IsNotExist(err) {
		return nil, svcerr.Wrap(svcerr.Internal, err, "warehouse: checking ingest path %q", relPath)
	}
	return &IngestSession{path: abs, schema: schema}, nil
}

// Write buffers one Arrow batch. Batches are retained until Commit so a
// failed or cancelled ingest leaves no partial file on disk.
func (s *IngestSession) Write(rec arrow.Record) {
	rec.Retain()
	s.records = append(s.records, rec)
}

// Abort releases any buffered batches without writing anything to disk.
func (s *IngestSession) Abort() {
	for _, r := range s.records {
		r.Release()
	}
	s.records = nil
}

// Path returns the filesystem path this session will (or did) write, for
// logging.
func (s *IngestSession) Path() string { return s.path }

// Commit writes every buffered batch to a single Parquet file at the
// session's resolved path, re-checking the target doesn't already exist
// so at-most-once holds even under concurrent ingest calls racing for the
// same path.
func (s *IngestSession) Commit() error {
	defer s.Abort()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return svcerr.Wrap(svcerr.Internal, err, "warehouse: preparing directory for %q", s.path)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return svcerr.Wrap(svcerr.Conflict, err, "warehouse: ingest path %q already exists", s.path)
		}
		return svcerr.Wrap(svcerr.Internal, err, "warehouse: creating %q", s.path)
	}
	defer f.Close()

	schema := parquetSchemaOf(s.schema)
	writer := parquet.NewGenericWriter[any](f, schema)
	for _, rec := range s.records {
		rows := rowsOf(rec)
		if _, err := writer.Write(rows); err != nil {
			return svcerr.Wrap(svcerr.Internal, err, "warehouse: writing rows to %q", s.path)
		}
	}
	if err := writer.Close(); err != nil {
		return svcerr.Wrap(svcerr.Internal, err, "warehouse: closing parquet writer for %q", s.path)
	}
	return nil
}

// parquetSchemaOf mirrors an Arrow schema's field names and nullability
// into a parquet.Schema, so the file's column layout matches what the
// client sent without requiring a static Go struct per ingest shape.
func parquetSchemaOf(schema *arrow.Schema) *parquet.Schema {
	group := parquet.Group{}
	for _, f := range schema.Fields() {
		node := parquetNodeFor(f.Type)
		if f.Nullable {
			node = parquet.Optional(node)
		}
		group[f.Name] = node
	}
	return parquet.NewSchema("ingest_row", group)
}

func parquetNodeFor(t arrow.DataType) parquet.Node {
	switch t.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32:
		return parquet.Int(32)
	case arrow.INT64:
		return parquet.Int(64)
	case arrow.UINT8, arrow.UINT16, arrow.UINT32:
		return parquet.Uint(32)
	case arrow.UINT64:
		return parquet.Uint(64)
	case arrow.FLOAT32:
		return parquet.Leaf(parquet.FloatType)
	case arrow.FLOAT64:
		return parquet.Leaf(parquet.DoubleType)
	case arrow.BOOL:
		return parquet.Leaf(parquet.BooleanType)
	default:
		return parquet.String()
	}
}

// rowsOf converts one Arrow record batch into the generic-map rows the
// dynamic parquet schema above expects.
func rowsOf(rec arrow.Record) []any {
	fields := rec.Schema().Fields()
	rows := make([]any, rec.NumRows())
	for r := 0; r < int(rec.NumRows()); r++ {
		row := make(map[string]any, len(fields))
		for c, f := range fields {
			row[f.Name] = columnValue(rec.Column(c), r)
		}
		rows[r] = row
	}
	return rows
}

func columnValue(col arrow.Array, i int) any {
	if col.IsNull(i) {
		return nil
	}
	switch v := col.(type) {
	case *array.Boolean:
		return v.Value(i)
	case *array.Int8:
		return v.Value(i)
	case *array.Int16:
		return v.Value(i)
	case *array.Int32:
		return v.Value(i)
	case *array.Int64:
		return v.Value(i)
	case *array.Uint8:
		return v.Value(i)
	case *array.Uint16:
		return v.Value(i)
	case *array.Uint32:
		return v.Value(i)
	case *array.Uint64:
		return v.Value(i)
	case *array.Float32:
		return v.Value(i)
	case *array.Float64:
		return v.Value(i)
	case *array.String:
		return v.Value(i)
	default:
		return col.ValueStr(i)
	}
}
