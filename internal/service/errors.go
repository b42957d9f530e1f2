package service

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cory-johannsen/crypdoebucks/internal/game/buck"
)

// errorDomain tags ErrorInfo details produced by this service.
const errorDomain = "bucks.v1"

type errorMapping struct {
	err    error
	code   codes.Code
	reason string
}

// ledgerErrors is matched in order with errors.Is.
var ledgerErrors = []errorMapping{
	{buck.ErrNotFound, codes.NotFound, "NOT_FOUND"},
	{buck.ErrAlreadyMinted, codes.AlreadyExists, "ALREADY_MINTED"},
	{buck.ErrUnauthorized, codes.PermissionDenied, "UNAUTHORIZED"},
	{buck.ErrNotReady, codes.FailedPrecondition, "NOT_READY"},
	{buck.ErrInvalidTarget, codes.InvalidArgument, "INVALID_TARGET"},
	{buck.ErrInvalidAttributes, codes.InvalidArgument, "INVALID_ATTRIBUTES"},
	{buck.ErrSupplyExceeded, codes.ResourceExhausted, "SUPPLY_EXCEEDED"},
}

// toStatus converts a ledger error into a gRPC status error. The sentinel is
// carried as an ErrorInfo reason so clients can recover it.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, m := range ledgerErrors {
		if errors.Is(err, m.err) {
			st := status.New(m.code, err.Error())
			if detailed, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: m.reason, Domain: errorDomain}); derr == nil {
				st = detailed
			}
			return st.Err()
		}
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// FromStatus recovers the ledger sentinel carried by a status error. The
// returned error wraps both the sentinel and the original status, so
// errors.Is and status.Code keep working.
func FromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok || st.Code() == codes.OK {
		return err
	}
	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != errorDomain {
			continue
		}
		for _, m := range ledgerErrors {
			if m.reason == info.GetReason() {
				return &remoteError{sentinel: m.err, st: err}
			}
		}
	}
	return err
}

type remoteError struct {
	sentinel error
	st       error
}

func (e *remoteError) Error() string { return e.st.Error() }

func (e *remoteError) Unwrap() []error { return []error{e.sentinel, e.st} }

// GRPCStatus lets status.FromError see through the wrapper.
func (e *remoteError) GRPCStatus() *status.Status {
	st, _ := status.FromError(e.st)
	return st
}
