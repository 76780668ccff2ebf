package producer

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dazzleduck/flightsql-server/internal/svcerr"
)

// toGRPCStatus maps a typed service error onto the Flight status code the
// propagation policy names (§7); a nil err stays nil, and an error without
// a Kind (never expected, but handled rather than trusted away) surfaces
// as Internal rather than panicking a type assertion.
func toGRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	var svc *svcerr.Error
	if errors.As(err, &svc) {
		return status.Error(svc.Kind.Code(), svc.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
