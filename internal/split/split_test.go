package split

import (
	"os"
	"testing"

	"github.com/dazzleduck/flightsql-server/internal/svcerr"
)

func TestParquetPlanner_OneShardPerFile(t *testing.T) {
	p := &ParquetPlanner{
		Glob: func(string) ([]string, error) {
			return []string{"example/hive_table/dt=1/p=1/a.parquet", "example/hive_table/dt=1/p=2/b.parquet", "example/hive_table/dt=2/p=1/c.parquet"}, nil
		},
		Stat: os.Stat,
	}
	sql := "select * from read_parquet('example/hive_table/*/*/*.parquet', hive_types = {'dt': DATE, 'p': VARCHAR})"
	shards, err := p.Plan(sql, "example/hive_table/*/*/*.parquet", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(shards) != 3 {
		t.Fatalf("want 3 shards, got %d", len(shards))
	}
	for _, s := range shards {
		if s.SQL == sql {
			t.Fatalf("shard SQL unchanged: %s", s.SQL)
		}
	}
}

func TestParquetPlanner_GroupsBySplitSize(t *testing.T) {
	p := &ParquetPlanner{
		Glob: func(string) ([]string, error) {
			return []string{"a.parquet", "b.parquet", "c.parquet"}, nil
		},
		Stat: os.Stat,
	}
	shards, err := p.Plan("select * from read_parquet('*.parquet')", "*.parquet", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(shards) != 2 {
		t.Fatalf("want 2 shards (2+1 grouping), got %d", len(shards))
	}
}

func TestParquetPlanner_ZeroFilesMatchedIsLegal(t *testing.T) {
	p := &ParquetPlanner{
		Glob: func(string) ([]string, error) { return nil, nil },
		Stat: func(string) (os.FileInfo, error) { return nil, nil },
	}
	shards, err := p.Plan("select * from read_parquet('example/*.parquet')", "example/*.parquet", 1)
	if err != nil {
		t.Fatalf("expected zero matches to be legal, got error: %v", err)
	}
	if len(shards) != 0 {
		t.Fatalf("want 0 shards, got %d", len(shards))
	}
}

func TestParquetPlanner_UnreachablePathIsNotFound(t *testing.T) {
	p := &ParquetPlanner{
		Glob: func(string) ([]string, error) { return nil, nil },
		Stat: func(string) (os.FileInfo, error) { return nil, os.ErrNotExist },
	}
	_, err := p.Plan("select * from read_parquet('missing/*.parquet')", "missing/*.parquet", 1)
	if svcerr.KindOf(err) != svcerr.NotFound {
		t.Fatalf("want NotFound, got %v", err)
	}
}

func TestDeltaPlanner_OneShardPerAddFile(t *testing.T) {
	dir := t.TempDir()
	logDir := dir + "/_delta_log"
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		t.Fatal(err)
	}
	commit := `{"add":{"path":"part-0001.parquet"}}
{"add":{"path":"part-0002.parquet"}}
`
	if err := os.WriteFile(logDir+"/00000000000000000000.json", []byte(commit), 0o644); err != nil {
		t.Fatal(err)
	}
	removal := `{"remove":{"path":"part-0001.parquet"}}
{"add":{"path":"part-0003.parquet"}}
`
	if err := os.WriteFile(logDir+"/00000000000000000001.json", []byte(removal), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewDeltaPlanner()
	shards, err := p.Plan("select * from read_delta('"+dir+"')", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(shards) != 2 {
		t.Fatalf("want 2 live files (part-0002, part-0003), got %d: %+v", len(shards), shards)
	}
}

func TestDeltaPlanner_UnreachableTableIsNotFound(t *testing.T) {
	p := NewDeltaPlanner()
	_, err := p.Plan("select * from read_delta('/no/such/table')", "/no/such/table")
	if svcerr.KindOf(err) != svcerr.NotFound {
		t.Fatalf("want NotFound, got %v", err)
	}
}
