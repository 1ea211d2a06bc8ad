package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestMapToGRPCError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"permission", ErrPermissionDenied, codes.PermissionDenied},
		{"wrapped participant", fmt.Errorf("add bob: %w", ErrInvalidParticipant), codes.InvalidArgument},
		{"already removed", ErrAlreadyRemoved, codes.FailedPrecondition},
		{"range", ErrRangeTooLarge, codes.OutOfRange},
		{"sequence", ErrInvalidSequence, codes.OutOfRange},
		{"typing", ErrRateLimited, codes.ResourceExhausted},
		{"text", ErrTextTooLong, codes.InvalidArgument},
		{"not found", ErrConversationNotFound, codes.NotFound},
		{"deadline", fmt.Errorf("reserve: %w", context.DeadlineExceeded), codes.DeadlineExceeded},
		{"unknown", fmt.Errorf("boom"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			st, ok := status.FromError(MapToGRPCError(tt.err))
			req.True(ok)
			req.Equal(tt.code, st.Code())
		})
	}
}

func TestMapToGRPCError_KeepsStatusAndNil(t *testing.T) {
	req := require.New(t)
	req.NoError(MapToGRPCError(nil))

	original := status.Error(codes.Unavailable, "down")
	req.Equal(original, MapToGRPCError(original))
}
