package warehouse

import (
	"os"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/dazzleduck/flightsql-server/internal/svcerr"
)

func sampleSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
}

func sampleRecord(schema *arrow.Schema) arrow.Record {
	idb := array.NewInt64Builder(memory.DefaultAllocator)
	defer idb.Release()
	nameb := array.NewStringBuilder(memory.DefaultAllocator)
	defer nameb.Release()

	idb.AppendValues([]int64{1, 2}, nil)
	nameb.Append("a")
	nameb.AppendNull()

	idCol := idb.NewArray()
	nameCol := nameb.NewArray()
	defer idCol.Release()
	defer nameCol.Release()

	return array.NewRecord(schema, []arrow.Array{idCol, nameCol}, 2)
}

func TestResolve_RejectsEscape(t *testing.T) {
	w, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := w.Resolve("../escape.parquet"); svcerr.KindOf(err) != svcerr.BadRequest {
		t.Fatalf("want BadRequest, got %v", err)
	}
}

func TestIngest_WritesFileOnce(t *testing.T) {
	w, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	schema := sampleSchema()

	sess, err := w.BeginIngest("events/batch1.parquet", schema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec := sampleRecord(schema)
	defer rec.Release()
	sess.Write(rec)

	if err := sess.Commit(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	info, err := os.Stat(sess.Path())
	if err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
	firstSize := info.Size()

	// Second ingest at the same path must fail and leave the file intact.
	sess2, err := w.BeginIngest("events/batch1.parquet", schema)
	if svcerr.KindOf(err) != svcerr.Conflict {
		t.Fatalf("want Conflict on second BeginIngest, got sess=%v err=%v", sess2, err)
	}

	info2, err := os.Stat(sess.Path())
	if err != nil {
		t.Fatalf("expected file to still exist: %v", err)
	}
	if info2.Size() != firstSize {
		t.Fatalf("file was modified: want size %d, got %d", firstSize, info2.Size())
	}
}
