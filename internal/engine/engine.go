// Package engine defines the connection-pool contract the rest of the
// server drives the embedded analytic SQL engine through, and a DuckDB
// implementation of it.
package engine

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
)

// Pool is the embedded engine's connection-pool interface. Every method is
// safe for concurrent use; callers must Close whatever they Prepare or
// Execute on every exit path (success, error, cancel).
type Pool interface {
	// Prepare compiles sql without producing a result, returning a handle
	// whose Schema can be read before Execute is ever called.
	Prepare(ctx context.Context, sql string) (Statement, error)
	Close() error
}

// Statement is a single compiled query, cancelable independently of the
// pool it came from.
type Statement interface {
	// Schema returns the statement's result schema without materializing
	// rows, so getFlightInfoStatement can answer before executing.
	Schema(ctx context.Context) (*arrow.Schema, error)
	// Execute runs the statement and returns a batch reader sized to
	// fetchSize rows per batch (fetchSize <= 0 means a single server
	// default).
	Execute(ctx context.Context, fetchSize int) (BatchReader, error)
	// Cancel aborts in-flight execution; safe to call more than once and
	// safe to call whether or not Execute has been invoked yet.
	Cancel()
	Close() error
}

// BatchReader streams a statement's result as Arrow record batches.
type BatchReader interface {
	Schema() *arrow.Schema
	// Next returns the next batch, or (nil, nil) at clean end of stream.
	// The returned record is owned by the caller and must be Released.
	Next(ctx context.Context) (arrow.Record, error)
	Close()
}
