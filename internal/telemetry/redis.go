package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

// MonitorRedis instruments the client with OpenTelemetry tracing and metrics
// and logs commands at debug level. Failed commands other than redis.Nil are
// logged as warnings.
func MonitorRedis(r redis.UniversalClient) error {
	if err := redisotel.InstrumentTracing(r); err != nil {
		return fmt.Errorf("instrument tracing: %w", err)
	}
	if err := redisotel.InstrumentMetrics(r); err != nil {
		return fmt.Errorf("instrument metrics: %w", err)
	}
	r.AddHook(redisLog{})
	return nil
}

type redisLog struct{}

func (redisLog) DialHook(hook redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := hook(ctx, network, addr)
		if err != nil {
			slog.WarnContext(ctx, "redis: dial failed", "network", network, "addr", addr, "error", err)
			return nil, err
		}
		slog.DebugContext(ctx, "redis: dialed", "network", network, "addr", addr)
		return conn, nil
	}
}

func (redisLog) ProcessHook(hook redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := hook(ctx, cmd)
		logCmd(ctx, cmd.Name(), time.Since(start), err)
		return err
	}
}

func (redisLog) ProcessPipelineHook(hook redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := hook(ctx, cmds)
		logCmd(ctx, fmt.Sprintf("pipeline(%d)", len(cmds)), time.Since(start), err)
		return err
	}
}

func logCmd(ctx context.Context, name string, d time.Duration, err error) {
	if err != nil && err != redis.Nil {
		slog.WarnContext(ctx, "redis: command failed", "cmd", name, "duration", d, "error", err)
		return
	}
	slog.DebugContext(ctx, "redis: command", "cmd", name, "duration", d)
}
