package producer

import (
	"context"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dazzleduck/flightsql-server/internal/ast"
	"github.com/dazzleduck/flightsql-server/internal/engine"
	"github.com/dazzleduck/flightsql-server/internal/metrics"
	"github.com/dazzleduck/flightsql-server/internal/model"
	"github.com/dazzleduck/flightsql-server/internal/registry"
	"github.com/dazzleduck/flightsql-server/internal/split"
	"github.com/dazzleduck/flightsql-server/internal/svcerr"
)

// GetFlightInfo is the single descriptor-to-plan RPC: it authenticates,
// then dispatches on the command embedded in the descriptor to one of the
// statement / prepared-execute / metadata paths, each of which returns a
// FlightInfo with one endpoint per shard.
func (s *Server) GetFlightInfo(ctx context.Context, desc *flight.FlightDescriptor) (*flight.FlightInfo, error) {
	started := time.Now()
	info, err := s.getFlightInfo(ctx, desc)
	metrics.ObserveRPC("GetFlightInfo", resultLabel(err), time.Since(started).Seconds())
	return info, toGRPCStatus(err)
}

func (s *Server) getFlightInfo(ctx context.Context, desc *flight.FlightDescriptor) (*flight.FlightInfo, error) {
	identity, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	cmd, err := decodeCommand(desc.Cmd)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.BadRequest, err, "producer: malformed flight descriptor command")
	}

	switch cmd.Op {
	case opStatement:
		return s.flightInfoStatement(ctx, identity, desc, cmd.SQL)
	case opPreparedExecute:
		return s.flightInfoPrepared(ctx, identity, desc, cmd.Handle)
	case opCatalogs:
		return s.flightInfoMetadata(ctx, identity, desc, catalogsSQL())
	case opSchemas:
		return s.flightInfoMetadata(ctx, identity, desc, schemasSQL(cmd.Catalog))
	case opTables:
		return s.flightInfoMetadata(ctx, identity, desc, tablesSQL(cmd.Catalog, cmd.Schema))
	default:
		return nil, svcerr.New(svcerr.BadRequest, "producer: unknown command op %q", cmd.Op)
	}
}

// flightInfoStatement implements getFlightInfoStatement (§4.6): parse,
// authorize, optionally split-plan, and return one endpoint per shard.
func (s *Server) flightInfoStatement(ctx context.Context, identity model.Identity, desc *flight.FlightDescriptor, sqlText string) (*flight.FlightInfo, error) {
	tree, err := ast.Parse(sqlText)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.BadRequest, err, "producer: cannot parse statement")
	}

	db := headerOr(ctx, "database", s.DefaultDatabase)
	schema := headerOr(ctx, "schema", s.DefaultSchema)

	rewritten, err := s.authorizerFor(identity).Authorize(identity, db, schema, tree)
	s.logAudit(identity.User, "query", sqlText, err == nil, "")
	if err != nil {
		return nil, err
	}

	sqlOut, err := ast.Deparse(rewritten)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.Internal, err, "producer: cannot deparse rewritten statement")
	}

	if coercion, ok := parseDataSchemaHeader(ctx); ok {
		sqlOut = applyScalarCoercion(sqlOut, coercion)
	}

	shards, split, err := s.planShards(ctx, rewritten, sqlOut)
	if err != nil {
		return nil, err
	}

	kind := ticketStatement
	if split {
		kind = ticketShard
	}
	return s.buildFlightInfo(ctx, identity, desc, sqlOut, shards, kind)
}

// planShards applies the Split Planner when the caller requests
// parallelization over a recognized partitioned source, falling back to a
// single unsharded "shard" otherwise. The bool result reports whether an
// actual split plan ran, so the caller can tag the resulting tickets with
// ticketShard instead of ticketStatement.
func (s *Server) planShards(ctx context.Context, rewritten ast.Tree, sqlOut string) ([]split.Shard, bool, error) {
	if !headerBool(ctx, "parallelize") {
		return []split.Shard{{SQL: sqlOut}}, false, nil
	}
	stmt, err := ast.FirstStatement(rewritten)
	if err != nil {
		return []split.Shard{{SQL: sqlOut}}, false, nil
	}
	refs := ast.AllTablesOrPaths(stmt, "", "")
	if len(refs) != 1 || refs[0].Type != model.TableFunction {
		return []split.Shard{{SQL: sqlOut}}, false, nil
	}

	splitSize := headerInt(ctx, "split-size", 1)
	ref := refs[0]
	switch ref.FunctionName {
	case "read_parquet":
		shards, err := s.ParquetPlanner.Plan(sqlOut, ref.TableOrPath, splitSize)
		if err != nil {
			return nil, false, err
		}
		return shards, true, nil
	case "read_delta":
		shards, err := s.DeltaPlanner.Plan(sqlOut, ref.TableOrPath)
		if err != nil {
			return nil, false, err
		}
		return shards, true, nil
	default:
		return []split.Shard{{SQL: sqlOut}}, false, nil
	}
}

// flightInfoPrepared implements executePreparedStatement: look up the
// owned prepared-statement handle and return a FlightInfo whose ticket
// references it, reusing the stored engine statement's schema.
func (s *Server) flightInfoPrepared(ctx context.Context, identity model.Identity, desc *flight.FlightDescriptor, handle string) (*flight.FlightInfo, error) {
	id, err := uuid.Parse(handle)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.BadRequest, err, "producer: malformed prepared-statement handle")
	}
	entry, err := s.Registry.Get(id, identity)
	if err != nil {
		return nil, err
	}
	stmt, ok := entry.Payload.(engine.Statement)
	if !ok {
		return nil, svcerr.New(svcerr.Internal, "producer: handle %s is not a prepared statement", id)
	}
	schema, err := stmt.Schema(ctx)
	if err != nil {
		return nil, err
	}

	fetchSize := headerInt(ctx, "fetch-size", 0)
	t := ticket{Kind: ticketPrepared, Handle: handle, FetchSize: fetchSize, Owner: identity.User}
	tb, err := encodeTicket(t)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.Internal, err, "producer: encoding ticket")
	}

	endpoint := &flight.FlightEndpoint{Ticket: &flight.Ticket{Ticket: tb}}
	return &flight.FlightInfo{
		FlightDescriptor: desc,
		Endpoint:         []*flight.FlightEndpoint{endpoint},
		Schema:           flight.SerializeSchema(schema, s.Alloc),
		TotalRecords:     -1,
		TotalBytes:       -1,
	}, nil
}

// flightInfoMetadata implements getCatalogs/getSchemas/getTables: these
// run trusted metadata SQL directly, bypassing authorization since they
// describe the engine's namespace rather than any user table's rows.
func (s *Server) flightInfoMetadata(ctx context.Context, identity model.Identity, desc *flight.FlightDescriptor, sqlText string) (*flight.FlightInfo, error) {
	return s.buildFlightInfo(ctx, identity, desc, sqlText, []split.Shard{{SQL: sqlText}}, ticketStatement)
}

// buildFlightInfo prepares sqlOut once (to read its schema without
// executing), allocates a running-query registry slot per shard so a
// later cancelFlightInfo call can find it, and returns the FlightInfo the
// client uses to fetch each shard.
func (s *Server) buildFlightInfo(ctx context.Context, identity model.Identity, desc *flight.FlightDescriptor, sqlOut string, shards []split.Shard, kind ticketKind) (*flight.FlightInfo, error) {
	probe, err := s.Engine.Prepare(ctx, sqlOut)
	if err != nil {
		return nil, err
	}
	schema, err := probe.Schema(ctx)
	probe.Close()
	if err != nil {
		return nil, err
	}

	fetchSize := headerInt(ctx, "fetch-size", 0)
	endpoints := make([]*flight.FlightEndpoint, 0, len(shards))
	for _, shard := range shards {
		entry := s.Registry.Insert(registry.RunningQuery, identity, nil, nil)
		t := ticket{Kind: kind, SQL: shard.SQL, Handle: entry.ID.String(), FetchSize: fetchSize, Owner: identity.User}
		tb, err := encodeTicket(t)
		if err != nil {
			return nil, svcerr.Wrap(svcerr.Internal, err, "producer: encoding ticket")
		}
		endpoints = append(endpoints, &flight.FlightEndpoint{Ticket: &flight.Ticket{Ticket: tb}})
	}

	return &flight.FlightInfo{
		FlightDescriptor: desc,
		Endpoint:         endpoints,
		Schema:           flight.SerializeSchema(schema, s.Alloc),
		TotalRecords:     -1,
		TotalBytes:       -1,
	}, nil
}

// DoGet implements getStream: decode the ticket, execute (or resume) the
// statement it names, and stream Arrow batches sized to the fetch-size
// hint until exhaustion, error, or cancellation.
func (s *Server) DoGet(req *flight.Ticket, stream flight.FlightService_DoGetServer) error {
	started := time.Now()
	err := s.doGet(req, stream)
	metrics.ObserveRPC("DoGet", resultLabel(err), time.Since(started).Seconds())
	return toGRPCStatus(err)
}

func (s *Server) doGet(req *flight.Ticket, stream flight.FlightService_DoGetServer) error {
	ctx := stream.Context()
	identity, err := s.identity(ctx)
	if err != nil {
		return err
	}
	t, err := decodeTicket(req.Ticket)
	if err != nil {
		return svcerr.Wrap(svcerr.BadRequest, err, "producer: malformed ticket")
	}
	if t.Owner != identity.User {
		return svcerr.New(svcerr.Unauthorized, "producer: ticket owned by a different identity")
	}

	id, err := uuid.Parse(t.Handle)
	if err != nil {
		return svcerr.Wrap(svcerr.BadRequest, err, "producer: malformed ticket handle")
	}
	entry, err := s.Registry.Get(id, identity)
	if err != nil {
		return err
	}
	if entry.Canceled() {
		return svcerr.New(svcerr.Cancelled, "producer: query %s was cancelled before it began streaming", id)
	}

	var stmt engine.Statement
	switch t.Kind {
	case ticketPrepared:
		var ok bool
		stmt, ok = entry.Payload.(engine.Statement)
		if !ok {
			return svcerr.New(svcerr.Internal, "producer: handle %s is not a prepared statement", id)
		}
	default:
		prepared, err := s.Engine.Prepare(ctx, t.SQL)
		if err != nil {
			return err
		}
		stmt = prepared
		entry.Bind(prepared.Cancel)
		defer func() { _ = s.Registry.Remove(id, identity) }()
	}
	if t.Kind != ticketPrepared {
		defer stmt.Close()
	}

	reader, err := stmt.Execute(ctx, t.FetchSize)
	if err != nil {
		return err
	}
	defer reader.Close()

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	writer := flight.NewRecordWriter(stream, ipc.WithSchema(reader.Schema()))
	defer writer.Close()

	for {
		rec, err := reader.Next(ctx)
		if err != nil {
			return err
		}
		if rec == nil {
			return nil
		}
		if err := writer.Write(rec); err != nil {
			rec.Release()
			return svcerr.Wrap(svcerr.Internal, err, "producer: writing batch to stream")
		}
		rec.Release()
		metrics.BatchesEmitted.Inc()
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if status.Code(err) == codes.OK {
		return "ok"
	}
	return svcerr.KindOf(err).String()
}
