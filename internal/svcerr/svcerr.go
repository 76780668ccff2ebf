// Package svcerr defines the error kinds every component surfaces to the
// Flight producer, and their mapping onto gRPC status codes.
package svcerr

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
)

// Kind classifies a server-side failure. The producer maps each Kind to a
// Flight (gRPC) status code at the RPC boundary; nothing below that
// boundary should construct a gRPC status directly.
type Kind int

const (
	Internal Kind = iota
	Unauthenticated
	Unauthorized
	BadRequest
	NotFound
	Conflict
	Cancelled
	EngineFailure
)

func (k Kind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case Unauthorized:
		return "unauthorized"
	case BadRequest:
		return "bad_request"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Cancelled:
		return "cancelled"
	case EngineFailure:
		return "engine_failure"
	default:
		return "internal"
	}
}

// Code maps a Kind onto the gRPC status code the producer sends back over
// Flight.
func (k Kind) Code() codes.Code {
	switch k {
	case Unauthenticated:
		return codes.Unauthenticated
	case Unauthorized:
		return codes.PermissionDenied
	case BadRequest:
		return codes.InvalidArgument
	case NotFound:
		return codes.NotFound
	case Conflict:
		return codes.AlreadyExists
	case Cancelled:
		return codes.Canceled
	case EngineFailure:
		return codes.Internal
	default:
		return codes.Internal
	}
}

// Error is a typed error carrying a Kind plus the offending subject, so
// callers don't need to string-match messages to branch on failure mode.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to Internal when err does
// not carry one (or is nil, which is never expected but handled safely).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
