package middleware

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/cloudwego/hertz/pkg/app"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"CareFollow/pkg/response"
)

// Recover 捕获 handler panic，返回 500；exposeDetails 为 true 时在响应中带上 panic 内容（仅开发环境）
func Recover(logger *zap.Logger, exposeDetails bool) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			stack := debug.Stack()
			logger.Error("Panic recovered",
				zap.String("panic", fmt.Sprint(r)),
				zap.String("method", string(c.Method())),
				zap.String("route", c.FullPath()),
				zap.String("client_ip", c.ClientIP()),
				zap.ByteString("stack", stack),
			)

			panicErr := fmt.Errorf("panic: %v", r)
			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.RecordError(panicErr)
				span.SetStatus(codes.Error, "panic recovered")
			}

			// 按未知错误统一返回 INTERNAL_ERROR，开发环境附带堆栈
			if !exposeDetails {
				response.Error(ctx, c, panicErr)
			} else {
				response.ErrorWithDetails(ctx, c, panicErr, map[string]interface{}{
					"panic": fmt.Sprint(r),
					"stack": string(stack),
				})
			}
			c.Abort()
		}()

		c.Next(ctx)
	}
}
