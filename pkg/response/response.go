package response

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"

	"CareFollow/pkg/errors"
)

// ErrorResponse 统一的错误响应格式
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Details map[string]interface{} `json:"details,omitempty"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
}

// SuccessResponse 统一的成功响应格式
type SuccessResponse struct {
	Data interface{}            `json:"data"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

var internalError = errors.Definition{Code: "INTERNAL_ERROR", Message: "Internal server error"}

// resolve 取错误链中的 Definition；未知错误不向调用方暴露内部信息
func resolve(err error) (int, errors.Definition) {
	switch {
	case errors.IsValidation(err):
		// 保留具体的网关校验码，其余统一为 VALIDATION_ERROR
		var def errors.Definition
		errors.As(err, &def)
		return http.StatusBadRequest, errors.Definition{Code: def.Code, Message: err.Error()}
	case errors.Is(err, errors.Unauthorized), errors.Is(err, errors.ErrInvalidToken):
		return http.StatusUnauthorized, errors.Unauthorized
	case errors.Is(err, errors.TooManyRequests):
		return http.StatusTooManyRequests, errors.TooManyRequests
	case errors.Is(err, errors.StoreUnavailable), errors.Is(err, errors.ErrBreakerOpen),
		errors.Is(err, errors.ErrMQConnectionNil), errors.Is(err, errors.ErrDatabaseConnectionNil):
		return http.StatusServiceUnavailable, errors.StoreUnavailable
	default:
		return http.StatusInternalServerError, internalError
	}
}

// Error 返回错误响应
func Error(ctx context.Context, c *app.RequestContext, err error) {
	ErrorWithDetails(ctx, c, err, nil)
}

func ErrorWithDetails(ctx context.Context, c *app.RequestContext, err error, details map[string]interface{}) {
	statusCode, def := resolve(err)
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    def.Code,
			Message: def.Message,
			Details: details,
		},
	})
}

func Success(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
	})
}

// Accepted 异步处理的请求返回 202
func Accepted(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusAccepted, SuccessResponse{
		Data: data,
	})
}

func BindError(ctx context.Context, c *app.RequestContext, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:    errors.InvalidRequest.Code,
			Message: err.Error(),
		},
	})
}
