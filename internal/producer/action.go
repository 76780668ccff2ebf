package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/google/uuid"

	"github.com/dazzleduck/flightsql-server/internal/ast"
	"github.com/dazzleduck/flightsql-server/internal/metrics"
	"github.com/dazzleduck/flightsql-server/internal/model"
	"github.com/dazzleduck/flightsql-server/internal/registry"
	"github.com/dazzleduck/flightsql-server/internal/svcerr"
)

// Action type names this server answers. There is no FlightSQL protobuf
// action catalog to conform to here, since GetFlightInfo/DoGet already use
// this server's own JSON command/ticket envelopes; DoAction follows the
// same convention for symmetry.
const (
	actionCreatePreparedStatement = "CreatePreparedStatement"
	actionClosePreparedStatement  = "ClosePreparedStatement"
	actionCancelQuery             = "CancelQuery"
)

// ListActions advertises the three handle-lifecycle actions the Producer
// answers via DoAction.
func (s *Server) ListActions(_ *flight.Empty, stream flight.FlightService_ListActionsServer) error {
	for _, t := range []string{actionCreatePreparedStatement, actionClosePreparedStatement, actionCancelQuery} {
		if err := stream.Send(&flight.ActionType{Type: t}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) DoAction(action *flight.Action, stream flight.FlightService_DoActionServer) error {
	started := time.Now()
	err := s.doAction(action, stream)
	metrics.ObserveRPC("DoAction:"+action.Type, resultLabel(err), time.Since(started).Seconds())
	return toGRPCStatus(err)
}

func (s *Server) doAction(action *flight.Action, stream flight.FlightService_DoActionServer) error {
	ctx := stream.Context()
	identity, err := s.identity(ctx)
	if err != nil {
		return err
	}

	switch action.Type {
	case actionCreatePreparedStatement:
		return s.createPreparedStatement(ctx, identity, action.Body, stream)
	case actionClosePreparedStatement:
		return s.closePreparedStatement(ctx, identity, action.Body, stream)
	case actionCancelQuery:
		return s.cancelFlightInfo(ctx, identity, action.Body, stream)
	default:
		return svcerr.New(svcerr.BadRequest, "producer: unknown action type %q", action.Type)
	}
}

type createPreparedStatementRequest struct {
	SQL string `json:"sql"`
}

type createPreparedStatementResult struct {
	Handle string `json:"handle"`
}

// createPreparedStatement implements createPreparedStatement (§4.6):
// authorize once up front, then store the rewritten SQL's engine
// preparation under a fresh registry handle so later executePreparedStatement
// calls reuse the same compiled statement.
func (s *Server) createPreparedStatement(ctx context.Context, identity model.Identity, body []byte, stream flight.FlightService_DoActionServer) error {
	var req createPreparedStatementRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return svcerr.Wrap(svcerr.BadRequest, err, "producer: malformed CreatePreparedStatement body")
	}

	tree, err := ast.Parse(req.SQL)
	if err != nil {
		return svcerr.Wrap(svcerr.BadRequest, err, "producer: cannot parse statement")
	}

	db := headerOr(ctx, "database", s.DefaultDatabase)
	schema := headerOr(ctx, "schema", s.DefaultSchema)

	rewritten, err := s.authorizerFor(identity).Authorize(identity, db, schema, tree)
	s.logAudit(identity.User, "prepare", req.SQL, err == nil, "")
	if err != nil {
		return err
	}

	sqlOut, err := ast.Deparse(rewritten)
	if err != nil {
		return svcerr.Wrap(svcerr.Internal, err, "producer: cannot deparse rewritten statement")
	}

	stmt, err := s.Engine.Prepare(ctx, sqlOut)
	if err != nil {
		return err
	}
	entry := s.Registry.Insert(registry.PreparedStatement, identity, stmt, stmt.Cancel)

	result := createPreparedStatementResult{Handle: entry.ID.String()}
	return sendActionResult(stream, result)
}

type closePreparedStatementRequest struct {
	Handle string `json:"handle"`
}

// closePreparedStatement implements closePreparedStatement: cancel the
// underlying engine statement and drop its registry slot.
func (s *Server) closePreparedStatement(ctx context.Context, identity model.Identity, body []byte, stream flight.FlightService_DoActionServer) error {
	var req closePreparedStatementRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return svcerr.Wrap(svcerr.BadRequest, err, "producer: malformed ClosePreparedStatement body")
	}
	id, err := uuid.Parse(req.Handle)
	if err != nil {
		return svcerr.Wrap(svcerr.BadRequest, err, "producer: malformed prepared-statement handle")
	}
	entry, err := s.Registry.Get(id, identity)
	if err != nil {
		return err
	}
	entry.Cancel()
	if err := s.Registry.Remove(id, identity); err != nil {
		return err
	}
	return stream.Send(&flight.Result{})
}

// cancelQueryRequest carries the same opaque ticket bytes the client
// received in a FlightInfo endpoint; the client never sees the handle id
// inside it directly, matching "tickets are opaque to clients" (§6).
type cancelQueryRequest struct {
	Tickets [][]byte `json:"tickets"`
}

// cancelFlightInfo implements cancelFlightInfo: locate the running-query
// handle(s) referenced by a FlightInfo's endpoint tickets and cancel each;
// non-blocking, signals the engine statement (or the as-yet-unbound cancel
// hook, per Entry.Bind) and returns without waiting for the stream to
// observe it. A prepared-statement ticket is not cancelable through this
// path; its handle belongs to createPreparedStatement/closePreparedStatement
// instead, so it's skipped rather than rejected.
func (s *Server) cancelFlightInfo(_ context.Context, identity model.Identity, body []byte, stream flight.FlightService_DoActionServer) error {
	var req cancelQueryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return svcerr.Wrap(svcerr.BadRequest, err, "producer: malformed CancelQuery body")
	}
	if len(req.Tickets) == 0 {
		return svcerr.New(svcerr.BadRequest, "producer: CancelQuery requires at least one ticket")
	}
	for _, tb := range req.Tickets {
		t, err := decodeTicket(tb)
		if err != nil {
			return svcerr.Wrap(svcerr.BadRequest, err, "producer: malformed ticket in CancelQuery")
		}
		if t.Kind == ticketPrepared {
			continue
		}
		id, err := uuid.Parse(t.Handle)
		if err != nil {
			return svcerr.Wrap(svcerr.BadRequest, err, "producer: malformed query handle")
		}
		if err := s.Registry.Cancel(id, identity); err != nil {
			return err
		}
	}
	return stream.Send(&flight.Result{})
}

func sendActionResult(stream flight.FlightService_DoActionServer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return svcerr.Wrap(svcerr.Internal, err, "producer: encoding action result")
	}
	return stream.Send(&flight.Result{Body: b})
}
