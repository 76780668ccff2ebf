// Package producer implements the Producer: the Flight SQL request
// dispatcher that ties headers, identity, the authorizer, the split
// planner, and the embedded engine together into FlightInfo/DoGet/DoPut/
// DoAction RPCs, and owns the handle registry those RPCs share.
package producer

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/dazzleduck/flightsql-server/internal/audit"
	"github.com/dazzleduck/flightsql-server/internal/auth"
	"github.com/dazzleduck/flightsql-server/internal/authz"
	"github.com/dazzleduck/flightsql-server/internal/engine"
	"github.com/dazzleduck/flightsql-server/internal/localdb"
	"github.com/dazzleduck/flightsql-server/internal/model"
	"github.com/dazzleduck/flightsql-server/internal/policy"
	"github.com/dazzleduck/flightsql-server/internal/registry"
	"github.com/dazzleduck/flightsql-server/internal/split"
	"github.com/dazzleduck/flightsql-server/internal/warehouse"
)

// Server is the Producer. It implements the plain Arrow Flight service
// interface (flight.FlightServer) directly rather than layering on the
// FlightSQL convenience wrapper: every command and ticket this server
// hands out is already its own opaque, server-defined payload (command.go,
// ticket.go), so there is no FlightSQL protobuf Command type to route on,
// and GetFlightInfo/DoGet/DoPut/DoAction map directly onto the RPC surface
// §4.6 names.
type Server struct {
	flight.BaseFlightServer

	Auth        *auth.Verifier
	StaticStore policy.Store
	RemoteStore policy.Store
	Mode        authz.Mode
	Hive        authz.HiveInspector

	Engine   engine.Pool
	Registry *registry.Registry

	ParquetPlanner *split.ParquetPlanner
	DeltaPlanner   *split.DeltaPlanner
	Warehouse      *warehouse.Warehouse

	Audit *localdb.DB

	DefaultDatabase string
	DefaultSchema   string

	Alloc memory.Allocator
}

// New builds a Server from its collaborators. The default catalog/schema
// default to "main", matching DuckDB's own defaults; override the fields
// directly for a different engine.
func New(verifier *auth.Verifier, staticStore policy.Store, mode authz.Mode, hive authz.HiveInspector, eng engine.Pool, reg *registry.Registry, wh *warehouse.Warehouse) *Server {
	return &Server{
		Auth:            verifier,
		StaticStore:     staticStore,
		Mode:            mode,
		Hive:            hive,
		Engine:          eng,
		Registry:        reg,
		ParquetPlanner:  split.NewParquetPlanner(),
		DeltaPlanner:    split.NewDeltaPlanner(),
		Warehouse:       wh,
		DefaultDatabase: "main",
		DefaultSchema:   "main",
		Alloc:           memory.DefaultAllocator,
	}
}

func (s *Server) identity(ctx context.Context) (model.Identity, error) {
	return s.Auth.IdentityFromContext(ctx)
}

// storeFor picks the remote (redirect) policy store when the caller's
// verified claims name a redirect-type token, falling back to the static
// store otherwise, per the Access Policy Store's two-implementation
// contract (§4.2).
func (s *Server) storeFor(identity model.Identity) policy.Store {
	if identity.VerifiedClaims["token_type"] == auth.RedirectTokenType && s.RemoteStore != nil {
		return s.RemoteStore
	}
	return s.StaticStore
}

func (s *Server) authorizerFor(identity model.Identity) *authz.Authorizer {
	return &authz.Authorizer{Store: s.storeFor(identity), Mode: s.Mode, Hive: s.Hive}
}

func (s *Server) logAudit(actor, action, object string, allowed bool, filter string) {
	audit.Log(s.Audit, actor, action, object, allowed, filter)
}
