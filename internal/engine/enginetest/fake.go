// Package enginetest provides a minimal, in-memory engine.Pool double for
// exercising the producer and registry without a real DuckDB connection.
package enginetest

import (
	"context"
	"regexp"
	"strconv"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/dazzleduck/flightsql-server/internal/engine"
	"github.com/dazzleduck/flightsql-server/internal/svcerr"
)

var seriesPattern = regexp.MustCompile(`(?i)generate_series\((\d+)\)`)

// Pool recognizes any query containing "generate_series(N)" (ignoring a
// WHERE clause) and synthesizes the int64 column {0,1,...,N}. A query of
// the form "SELECT x FROM ..." stands in for an unknown column and fails
// with EngineFailure on first fetch, the way the embedded engine defers
// binding errors until execution. A query without generate_series(N) is
// rejected by Prepare with BadRequest.
type Pool struct {
	mu     sync.Mutex
	closed bool
}

func New() *Pool { return &Pool{} }

func (p *Pool) Prepare(_ context.Context, sql string) (engine.Statement, error) {
	m := seriesPattern.FindStringSubmatch(sql)
	if m == nil {
		return nil, svcerr.New(svcerr.BadRequest, "enginetest: unsupported query %q", sql)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.BadRequest, err, "enginetest: bad generate_series argument")
	}
	badColumn := regexp.MustCompile(`(?i)select\s+x\s+from`).MatchString(sql)
	return &statement{n: n, badColumn: badColumn}, nil
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type statement struct {
	n         int64
	badColumn bool

	mu        sync.Mutex
	cancelled bool
}

func (s *statement) Schema(context.Context) (*arrow.Schema, error) {
	return arrow.NewSchema([]arrow.Field{{Name: "generate_series", Type: arrow.PrimitiveTypes.Int64}}, nil), nil
}

func (s *statement) Execute(ctx context.Context, fetchSize int) (engine.BatchReader, error) {
	if fetchSize <= 0 {
		fetchSize = 10
	}
	schema, _ := s.Schema(ctx)
	return &reader{stmt: s, schema: schema, fetchSize: fetchSize}, nil
}

func (s *statement) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
}

func (s *statement) Close() error { return nil }

type reader struct {
	stmt      *statement
	schema    *arrow.Schema
	fetchSize int
	emitted   int64
}

func (r *reader) Schema() *arrow.Schema { return r.schema }

func (r *reader) Next(ctx context.Context) (arrow.Record, error) {
	r.stmt.mu.Lock()
	cancelled := r.stmt.cancelled
	r.stmt.mu.Unlock()
	if cancelled {
		return nil, svcerr.New(svcerr.Cancelled, "enginetest: statement cancelled")
	}
	if r.stmt.badColumn && r.emitted == 0 {
		return nil, svcerr.New(svcerr.EngineFailure, "enginetest: column %q does not exist", "x")
	}

	select {
	case <-ctx.Done():
		return nil, svcerr.Wrap(svcerr.Cancelled, ctx.Err(), "enginetest: stream cancelled")
	default:
	}

	total := r.stmt.n + 1 // inclusive of 0 and N
	if r.emitted >= total {
		return nil, nil
	}
	batch := r.fetchSize
	if remaining := total - r.emitted; int64(batch) > remaining {
		batch = int(remaining)
	}

	b := array.NewInt64Builder(memory.DefaultAllocator)
	defer b.Release()
	for i := 0; i < batch; i++ {
		b.Append(r.emitted)
		r.emitted++
	}
	col := b.NewArray()
	defer col.Release()
	return array.NewRecord(r.schema, []arrow.Array{col}, int64(batch)), nil
}

func (r *reader) Close() {}
