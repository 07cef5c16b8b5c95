package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/config"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// httpMetrics 为 nil 时中间件只透传
type httpMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	active   metric.Int64UpDownCounter
}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	m := &httpMetrics{}
	var err error

	if m.requests, err = meter.Int64Counter(
		"http.server.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	); err != nil {
		return nil, err
	}
	if m.active, err = meter.Int64UpDownCounter(
		"http.server.active_requests",
		metric.WithDescription("Number of active HTTP requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// HTTPMetrics 记录请求指标；route 用注册的路由模板，避免患者 ID 进入标签
func HTTPMetrics() (app.HandlerFunc, error) {
	m, err := newHTTPMetrics(otel.Meter("carefollow/http"))
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		m.active.Add(ctx, 1)
		defer m.active.Add(ctx, -1)

		c.Next(ctx)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		statusCode := c.Response.StatusCode()
		labels := metric.WithAttributes(
			semconv.HTTPMethod(strings.ToValidUTF8(string(c.Method()), "")),
			semconv.HTTPRoute(route),
			semconv.HTTPStatusCode(statusCode),
		)
		m.requests.Add(ctx, 1, labels)
		m.duration.Record(ctx, time.Since(start).Seconds(), labels)

		if span := trace.SpanFromContext(ctx); span.IsRecording() {
			if caller, ok := CallerID(c); ok {
				span.SetAttributes(attribute.String("carefollow.caller", caller))
			}
			if requestID := c.GetHeader("X-Request-Id"); len(requestID) > 0 {
				span.SetAttributes(attribute.String("http.request_id", strings.ToValidUTF8(string(requestID), "")))
			}
		}
	}, nil
}

// NewServerTracerConfig 创建 Hertz Server 的追踪配置与追踪中间件
func NewServerTracerConfig(opts ...hertztracing.Option) (config.Option, app.HandlerFunc) {
	tracer, cfg := hertztracing.NewServerTracer(opts...)
	return tracer, hertztracing.ServerMiddleware(cfg)
}
