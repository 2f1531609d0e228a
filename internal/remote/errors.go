package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/ChuLiYu/slidetiles/pkg/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus converts a job error into a gRPC status error.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, types.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, types.ErrCancelled):
		return status.Error(codes.Aborted, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// fromStatus converts a gRPC error back into the error kinds of pkg/types.
// Only Aborted (the server's pool shut down) and Canceled become ErrCancelled.
// An unreachable server and everything else stay plain errors, which the
// decoder reports as decode failures.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", types.ErrInvalidInput, st.Message())
	case codes.Aborted, codes.Canceled:
		return fmt.Errorf("%w: remote: %s", types.ErrCancelled, st.Message())
	case codes.Unavailable:
		return fmt.Errorf("remote unavailable: %s", st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("remote: %s: %w", st.Message(), context.DeadlineExceeded)
	}
	return fmt.Errorf("remote: %s", st.Message())
}
