package producer

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/google/uuid"

	"github.com/dazzleduck/flightsql-server/internal/authz"
	"github.com/dazzleduck/flightsql-server/internal/svcerr"
)

type fakeDoGetServer struct {
	fakeServerStream
	sent int
}

func (f *fakeDoGetServer) Send(*flight.FlightData) error {
	f.sent++
	return nil
}

// scenario 1 (§8): SELECT * FROM generate_series(10) over one endpoint
// yields a single stream with no error.
func TestDoGet_SimpleStatement(t *testing.T) {
	srv := newTestServer(nil, authz.Complete)
	ctx := authedContext("alice", nil)

	desc := &flight.FlightDescriptor{Cmd: encodeCommand(command{Op: opStatement, SQL: "SELECT * FROM generate_series(10)"})}
	info, err := srv.getFlightInfo(ctx, desc)
	if err != nil {
		t.Fatalf("getFlightInfo: %v", err)
	}
	if len(info.Endpoint) != 1 {
		t.Fatalf("expected 1 endpoint, got %d", len(info.Endpoint))
	}

	stream := &fakeDoGetServer{fakeServerStream: fakeServerStream{ctx: ctx}}
	ticket := info.Endpoint[0].Ticket
	if err := srv.doGet(ticket, stream); err != nil {
		t.Fatalf("doGet: %v", err)
	}
	// The record writer sends the schema as its own FlightData message,
	// then one message per batch; 11 rows at the test engine's default
	// fetch size of 10 make 2 batches.
	if stream.sent != 3 {
		t.Fatalf("expected 3 messages (schema + 2 batches), got %d", stream.sent)
	}
}

// scenario 2 (§8): fetch-size=10, N=100 yields 11 batches.
func TestDoGet_MultiBatch(t *testing.T) {
	srv := newTestServer(nil, authz.Complete)
	ctx := authedContext("alice", nil)
	ctx = withHeaders(ctx, map[string]string{"fetch-size": "10"})

	desc := &flight.FlightDescriptor{Cmd: encodeCommand(command{Op: opStatement, SQL: "SELECT * FROM generate_series(100)"})}
	info, err := srv.getFlightInfo(ctx, desc)
	if err != nil {
		t.Fatalf("getFlightInfo: %v", err)
	}

	stream := &fakeDoGetServer{fakeServerStream: fakeServerStream{ctx: ctx}}
	if err := srv.doGet(info.Endpoint[0].Ticket, stream); err != nil {
		t.Fatalf("doGet: %v", err)
	}
	if stream.sent != 12 {
		t.Fatalf("expected 12 messages (schema + ceil(101/10) = 11 batches), got %d", stream.sent)
	}
}

// scenario 7 (§8): a query with an unresolvable column succeeds at
// getFlightInfo (the engine defers binding) but fails on first fetch.
func TestDoGet_BadQueryFailsMidStream(t *testing.T) {
	srv := newTestServer(nil, authz.Complete)
	ctx := authedContext("alice", nil)

	desc := &flight.FlightDescriptor{Cmd: encodeCommand(command{Op: opStatement, SQL: "SELECT x FROM generate_series(10)"})}
	info, err := srv.getFlightInfo(ctx, desc)
	if err != nil {
		t.Fatalf("expected getFlightInfo to succeed, got %v", err)
	}

	stream := &fakeDoGetServer{fakeServerStream: fakeServerStream{ctx: ctx}}
	err = srv.doGet(info.Endpoint[0].Ticket, stream)
	if svcerr.KindOf(err) != svcerr.EngineFailure {
		t.Fatalf("want EngineFailure, got %v", err)
	}
}

// scenario 6 (§8): cancelling before the stream opens surfaces Cancelled.
func TestDoGet_CancelBeforeStreamStart(t *testing.T) {
	srv := newTestServer(nil, authz.Complete)
	ctx := authedContext("alice", nil)

	desc := &flight.FlightDescriptor{Cmd: encodeCommand(command{Op: opStatement, SQL: "SELECT * FROM generate_series(1000000000)"})}
	info, err := srv.getFlightInfo(ctx, desc)
	if err != nil {
		t.Fatalf("getFlightInfo: %v", err)
	}

	t0, err := decodeTicket(info.Endpoint[0].Ticket.Ticket)
	if err != nil {
		t.Fatalf("decodeTicket: %v", err)
	}
	id, err := uuid.Parse(t0.Handle)
	if err != nil {
		t.Fatalf("parsing handle: %v", err)
	}
	identity, err := srv.identity(ctx)
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	if err := srv.Registry.Cancel(id, identity); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	stream := &fakeDoGetServer{fakeServerStream: fakeServerStream{ctx: ctx}}
	err = srv.doGet(info.Endpoint[0].Ticket, stream)
	if svcerr.KindOf(err) != svcerr.Cancelled {
		t.Fatalf("want Cancelled, got %v", err)
	}
}

func TestDoGet_CrossUserTicketRejected(t *testing.T) {
	srv := newTestServer(nil, authz.Complete)
	ctx := authedContext("alice", nil)
	desc := &flight.FlightDescriptor{Cmd: encodeCommand(command{Op: opStatement, SQL: "SELECT * FROM generate_series(10)"})}
	info, err := srv.getFlightInfo(ctx, desc)
	if err != nil {
		t.Fatalf("getFlightInfo: %v", err)
	}

	otherCtx := authedContext("mallory", nil)
	stream := &fakeDoGetServer{fakeServerStream: fakeServerStream{ctx: otherCtx}}
	err = srv.doGet(info.Endpoint[0].Ticket, stream)
	if svcerr.KindOf(err) != svcerr.Unauthorized {
		t.Fatalf("want Unauthorized, got %v", err)
	}
}

