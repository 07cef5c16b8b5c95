package middleware

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/jwt"
	"go.uber.org/zap"

	"CareFollow/config"
	"CareFollow/pkg/errors"
	"CareFollow/pkg/response"
	"CareFollow/pkg/token"
)

const IdentityKey = token.IdentityKey

// NewAuth 服务间鉴权：校验 pkg/token 签发的 Bearer 令牌，AUTH_ENABLED=false 时直接放行
func NewAuth(cfg *config.Config, logger *zap.Logger) (app.HandlerFunc, error) {
	if !cfg.AuthEnabled {
		logger.Warn("Service authentication disabled")
		return func(ctx context.Context, c *app.RequestContext) {
			c.Next(ctx)
		}, nil
	}

	mw, err := jwt.New(&jwt.HertzJWTMiddleware{
		Realm:       "CareFollow API",
		Key:         []byte(cfg.JWTSecret),
		Timeout:     cfg.TokenTTL(),
		IdentityKey: IdentityKey,
		TimeFunc:    time.Now,

		IdentityHandler: func(ctx context.Context, c *app.RequestContext) interface{} {
			claims := jwt.ExtractClaims(ctx, c)
			service, ok := claims[IdentityKey].(string)
			if !ok || service == "" {
				return nil
			}
			return service
		},

		// 没有 svc claim 的令牌（例如别的系统用同一密钥签发的）一律拒绝
		Authorizator: func(data interface{}, ctx context.Context, c *app.RequestContext) bool {
			service, ok := data.(string)
			return ok && service != ""
		},

		Unauthorized: func(ctx context.Context, c *app.RequestContext, code int, message string) {
			logger.Debug("Rejected unauthenticated request",
				zap.String("path", string(c.Path())),
				zap.String("reason", message),
			)
			response.Error(ctx, c, errors.Unauthorized)
		},

		TokenLookup:   "header: Authorization",
		TokenHeadName: "Bearer",
	})
	if err != nil {
		return nil, err
	}
	return mw.MiddlewareFunc(), nil
}

// CallerID 已认证调用方的服务名
func CallerID(c *app.RequestContext) (string, bool) {
	v, exists := c.Get(IdentityKey)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
