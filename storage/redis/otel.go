package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingHook 为每条命令建 span 并记录耗时；只记录命令名，不记录参数
type TracingHook struct {
	tracer   trace.Tracer
	attrs    []attribute.KeyValue
	commands metric.Int64Counter
	duration metric.Float64Histogram
}

func NewTracingHook(serviceName string, db int) *TracingHook {
	meter := otel.Meter(serviceName + ".redis")
	// 指标创建失败时 counter 为 nil，记录前判空
	commands, _ := meter.Int64Counter(
		"redis.commands.total",
		metric.WithDescription("Total number of Redis commands"),
		metric.WithUnit("{command}"),
	)
	duration, _ := meter.Float64Histogram(
		"redis.command.duration",
		metric.WithDescription("Redis command duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0),
	)

	return &TracingHook{
		tracer: otel.Tracer(serviceName + ".redis"),
		attrs: []attribute.KeyValue{
			semconv.DBSystemRedis,
			semconv.DBRedisDBIndex(db),
		},
		commands: commands,
		duration: duration,
	}
}

func (th *TracingHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (th *TracingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		ctx, span := th.tracer.Start(ctx, "redis."+cmd.Name(),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(th.attrs...),
			trace.WithAttributes(semconv.DBOperation(cmd.Name())),
		)
		defer span.End()

		start := time.Now()
		err := next(ctx, cmd)
		th.record(ctx, span, cmd.Name(), err, time.Since(start))
		return err
	}
}

func (th *TracingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		ctx, span := th.tracer.Start(ctx, "redis.pipeline",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(th.attrs...),
			trace.WithAttributes(attribute.Int("redis.pipeline.count", len(cmds))),
		)
		defer span.End()

		start := time.Now()
		err := next(ctx, cmds)
		th.record(ctx, span, "pipeline", err, time.Since(start))
		return err
	}
}

func (th *TracingHook) record(ctx context.Context, span trace.Span, command string, err error, elapsed time.Duration) {
	status := "success"
	switch {
	case err == redis.Nil:
		// SETNX 抢锁失败、GET 未命中都不是错误
		status = "not_found"
	case err != nil:
		status = "error"
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}

	attrs := metric.WithAttributes(
		attribute.String("redis.command", command),
		attribute.String("redis.status", status),
	)
	if th.commands != nil {
		th.commands.Add(ctx, 1, attrs)
	}
	if th.duration != nil {
		th.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
}
