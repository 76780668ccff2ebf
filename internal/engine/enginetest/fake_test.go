package enginetest

import (
	"context"
	"testing"

	"github.com/dazzleduck/flightsql-server/internal/svcerr"
)

func TestGenerateSeries_SingleBatch(t *testing.T) {
	p := New()
	stmt, err := p.Prepare(context.Background(), "SELECT * FROM generate_series(10)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reader, err := stmt.Execute(context.Background(), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, err := reader.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.NumRows() != 11 {
		t.Fatalf("want 11 rows, got %d", rec.NumRows())
	}
	next, err := reader.Next(context.Background())
	if err != nil || next != nil {
		t.Fatalf("want clean EOF, got rec=%v err=%v", next, err)
	}
}

func TestGenerateSeries_MultiBatch(t *testing.T) {
	p := New()
	stmt, _ := p.Prepare(context.Background(), "SELECT * FROM generate_series(100)")
	reader, _ := stmt.Execute(context.Background(), 10)

	var sizes []int64
	for {
		rec, err := reader.Next(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec == nil {
			break
		}
		sizes = append(sizes, rec.NumRows())
	}
	if len(sizes) != 11 {
		t.Fatalf("want 11 batches, got %d: %v", len(sizes), sizes)
	}
	if sizes[10] != 1 {
		t.Fatalf("want final batch of 1 row, got %d", sizes[10])
	}
}

func TestBadColumn_FailsOnFirstBatch(t *testing.T) {
	p := New()
	stmt, err := p.Prepare(context.Background(), "SELECT x FROM generate_series(10)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reader, _ := stmt.Execute(context.Background(), 10)
	_, err = reader.Next(context.Background())
	if svcerr.KindOf(err) != svcerr.EngineFailure {
		t.Fatalf("want EngineFailure, got %v", err)
	}
}

func TestCancel_FailsSubsequentFetch(t *testing.T) {
	p := New()
	stmt, _ := p.Prepare(context.Background(), "SELECT * FROM generate_series(1000000000)")
	reader, _ := stmt.Execute(context.Background(), 10)
	stmt.Cancel()
	_, err := reader.Next(context.Background())
	if svcerr.KindOf(err) != svcerr.Cancelled {
		t.Fatalf("want Cancelled, got %v", err)
	}
}
