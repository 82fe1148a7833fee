package telemetry

import (
	"context"
	"log/slog"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"google.golang.org/grpc"
)

// GRPCServerInterceptor logs the end of every unary and streaming call. Only
// the health service is served over gRPC, so start events are left out.
func GRPCServerInterceptor() grpc.ServerOption {
	l := grpcServerLogger(slog.Default().With("component", "grpc"))
	opts := []logging.Option{
		logging.WithLogOnEvents(logging.FinishCall),
	}

	return grpc.ChainUnaryInterceptor(
		logging.UnaryServerInterceptor(l, opts...),
	)
}

// GRPCStreamInterceptor is the streaming counterpart, used by health Watch.
func GRPCStreamInterceptor() grpc.ServerOption {
	l := grpcServerLogger(slog.Default().With("component", "grpc"))
	return grpc.ChainStreamInterceptor(
		logging.StreamServerInterceptor(l, logging.WithLogOnEvents(logging.StartCall, logging.FinishCall)),
	)
}

func grpcServerLogger(l *slog.Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		l.Log(ctx, slog.Level(lvl), msg, fields...)
	})
}
