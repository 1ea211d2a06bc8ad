package errors

import (
	"context"
	stderrors "errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var grpcCodes = []struct {
	err  error
	code codes.Code
}{
	{ErrUnauthenticated, codes.Unauthenticated},
	{ErrPermissionDenied, codes.PermissionDenied},
	{ErrInvalidParticipant, codes.InvalidArgument},
	{ErrInvalidRequest, codes.InvalidArgument},
	{ErrInvalidPayload, codes.InvalidArgument},
	{ErrEmptyMessage, codes.InvalidArgument},
	{ErrTextTooLong, codes.InvalidArgument},
	{ErrAlreadyRemoved, codes.FailedPrecondition},
	{ErrInvalidSequence, codes.OutOfRange},
	{ErrRangeTooLarge, codes.OutOfRange},
	{ErrRateLimited, codes.ResourceExhausted},
	{ErrConversationNotFound, codes.NotFound},
	{ErrUnknownUser, codes.NotFound},
	{ErrUserAlreadyExists, codes.AlreadyExists},
	{ErrSequenceConflict, codes.Aborted},
	{ErrInternal, codes.Internal},
}

// MapToGRPCError converts a domain error into a gRPC status error.
// Errors that are already statuses are returned untouched, unknown errors become Internal.
func MapToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case stderrors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	for _, c := range grpcCodes {
		if stderrors.Is(err, c.err) {
			return status.Error(c.code, err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}
