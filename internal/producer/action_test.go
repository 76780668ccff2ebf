package producer

import (
	"encoding/json"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/google/uuid"

	"github.com/dazzleduck/flightsql-server/internal/authz"
	"github.com/dazzleduck/flightsql-server/internal/svcerr"
)

type fakeDoActionServer struct {
	fakeServerStream
	results []*flight.Result
}

func (f *fakeDoActionServer) Send(r *flight.Result) error {
	f.results = append(f.results, r)
	return nil
}

func doAction(t *testing.T, srv *Server, ctx *fakeServerStream, actionType string, body any) *fakeDoActionServer {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal action body: %v", err)
	}
	stream := &fakeDoActionServer{fakeServerStream: *ctx}
	if err := srv.doAction(&flight.Action{Type: actionType, Body: b}, stream); err != nil {
		t.Fatalf("doAction %s: %v", actionType, err)
	}
	return stream
}

// createPreparedStatement followed by closePreparedStatement round-trips a
// handle through the registry and leaves no entry behind.
func TestPreparedStatementLifecycle(t *testing.T) {
	srv := newTestServer(nil, authz.Complete)
	ctx := &fakeServerStream{ctx: authedContext("alice", nil)}

	stream := doAction(t, srv, ctx, actionCreatePreparedStatement, createPreparedStatementRequest{SQL: "SELECT * FROM generate_series(10)"})
	if len(stream.results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(stream.results))
	}
	var created createPreparedStatementResult
	if err := json.Unmarshal(stream.results[0].Body, &created); err != nil {
		t.Fatalf("unmarshal create result: %v", err)
	}
	if created.Handle == "" {
		t.Fatalf("expected a non-empty handle")
	}
	if n := srv.Registry.Len(); n != 1 {
		t.Fatalf("expected 1 live registry entry, got %d", n)
	}

	doAction(t, srv, ctx, actionClosePreparedStatement, closePreparedStatementRequest{Handle: created.Handle})
	if n := srv.Registry.Len(); n != 0 {
		t.Fatalf("expected 0 live registry entries after close, got %d", n)
	}
}

func TestClosePreparedStatement_UnknownHandleFails(t *testing.T) {
	srv := newTestServer(nil, authz.Complete)
	ctx := &fakeServerStream{ctx: authedContext("alice", nil)}
	stream := &fakeDoActionServer{fakeServerStream: *ctx}

	body, _ := json.Marshal(closePreparedStatementRequest{Handle: "00000000-0000-0000-0000-000000000000"})
	err := srv.doAction(&flight.Action{Type: actionClosePreparedStatement, Body: body}, stream)
	if svcerr.KindOf(err) != svcerr.NotFound {
		t.Fatalf("want NotFound, got %v", err)
	}
}

// cancelFlightInfo is handed the opaque ticket bytes a FlightInfo endpoint
// carried, not a raw handle id, and cancels the statement they name.
func TestCancelFlightInfo_ByTicketBytes(t *testing.T) {
	srv := newTestServer(nil, authz.Complete)
	ctx := authedContext("alice", nil)

	desc := &flight.FlightDescriptor{Cmd: encodeCommand(command{Op: opStatement, SQL: "SELECT * FROM generate_series(1000000000)"})}
	info, err := srv.getFlightInfo(ctx, desc)
	if err != nil {
		t.Fatalf("getFlightInfo: %v", err)
	}
	ticketBytes := info.Endpoint[0].Ticket.Ticket

	stream := doAction(t, srv, &fakeServerStream{ctx: ctx}, actionCancelQuery, cancelQueryRequest{Tickets: [][]byte{ticketBytes}})
	if len(stream.results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(stream.results))
	}

	t0, err := decodeTicket(ticketBytes)
	if err != nil {
		t.Fatalf("decodeTicket: %v", err)
	}
	identity, err := srv.identity(ctx)
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	id, err := uuid.Parse(t0.Handle)
	if err != nil {
		t.Fatalf("parsing handle: %v", err)
	}
	entry, err := srv.Registry.Get(id, identity)
	if err != nil {
		t.Fatalf("expected entry to still be registered (cancel doesn't remove it): %v", err)
	}
	if !entry.Canceled() {
		t.Fatalf("expected entry to be canceled")
	}
}

func TestCancelFlightInfo_RequiresAtLeastOneTicket(t *testing.T) {
	srv := newTestServer(nil, authz.Complete)
	ctx := &fakeServerStream{ctx: authedContext("alice", nil)}
	stream := &fakeDoActionServer{fakeServerStream: *ctx}

	body, _ := json.Marshal(cancelQueryRequest{})
	err := srv.doAction(&flight.Action{Type: actionCancelQuery, Body: body}, stream)
	if svcerr.KindOf(err) != svcerr.BadRequest {
		t.Fatalf("want BadRequest, got %v", err)
	}
}

func TestDoAction_UnknownType(t *testing.T) {
	srv := newTestServer(nil, authz.Complete)
	ctx := &fakeServerStream{ctx: authedContext("alice", nil)}
	stream := &fakeDoActionServer{fakeServerStream: *ctx}

	err := srv.doAction(&flight.Action{Type: "NotARealAction"}, stream)
	if svcerr.KindOf(err) != svcerr.BadRequest {
		t.Fatalf("want BadRequest, got %v", err)
	}
}
