package errors

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor turns handler errors into gRPC statuses. An *Error
// keeps its code and carries its reason as an ErrorInfo detail; a status
// error passes through; anything else becomes a bare Internal status.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		return resp, toStatusError(err)
	}
}

// StreamServerInterceptor is the streaming counterpart of UnaryServerInterceptor.
func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return toStatusError(handler(srv, ss))
	}
}

func toStatusError(err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e.GRPCStatus().Err()
	}

	if _, ok := status.FromError(err); ok {
		return err
	}

	return New(CodeInternal).GRPCStatus().Err()
}
