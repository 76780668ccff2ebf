package producer

import (
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"

	"github.com/dazzleduck/flightsql-server/internal/metrics"
	"github.com/dazzleduck/flightsql-server/internal/svcerr"
)

// DoPut implements executeIngest (§4.6): the client streams Arrow batches
// tagged with a FlightDescriptor whose command names the warehouse-relative
// path to write. The session buffers every batch and commits them as a
// single Parquet file only once the stream ends cleanly, so a client error
// or disconnect leaves no partial file under the warehouse root.
func (s *Server) DoPut(stream flight.FlightService_DoPutServer) error {
	started := time.Now()
	err := s.doPut(stream)
	metrics.ObserveRPC("DoPut", resultLabel(err), time.Since(started).Seconds())
	return toGRPCStatus(err)
}

func (s *Server) doPut(stream flight.FlightService_DoPutServer) error {
	ctx := stream.Context()
	identity, err := s.identity(ctx)
	if err != nil {
		return err
	}

	rdr, err := flight.NewRecordReader(stream, ipc.WithAllocator(s.Alloc), ipc.WithDelayReadSchema(true))
	if err != nil {
		return svcerr.Wrap(svcerr.BadRequest, err, "producer: reading ingest stream")
	}
	defer rdr.Release()

	desc := rdr.LatestFlightDescriptor()
	cmd, err := decodeCommand(desc.Cmd)
	if err != nil {
		return svcerr.Wrap(svcerr.BadRequest, err, "producer: malformed ingest descriptor command")
	}
	if cmd.Op != opIngest || cmd.Path == "" {
		return svcerr.New(svcerr.BadRequest, "producer: ingest descriptor missing a target path")
	}

	session, err := s.Warehouse.BeginIngest(cmd.Path, rdr.Schema())
	if err != nil {
		s.logAudit(identity.User, "ingest", cmd.Path, false, "")
		if svcerr.KindOf(err) == svcerr.Conflict {
			metrics.IngestConflicts.Inc()
		}
		return err
	}

	for rdr.Next() {
		session.Write(rdr.Record())
		if err := stream.Send(&flight.PutResult{}); err != nil {
			session.Abort()
			return svcerr.Wrap(svcerr.Internal, err, "producer: acking ingest batch")
		}
	}
	if err := rdr.Err(); err != nil {
		session.Abort()
		return svcerr.Wrap(svcerr.EngineFailure, err, "producer: reading ingest stream")
	}

	if err := session.Commit(); err != nil {
		s.logAudit(identity.User, "ingest", cmd.Path, false, "")
		if svcerr.KindOf(err) == svcerr.Conflict {
			metrics.IngestConflicts.Inc()
		}
		return err
	}
	s.logAudit(identity.User, "ingest", cmd.Path, true, "")
	return nil
}
