package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"CareFollow/pkg/errors"
	"CareFollow/pkg/response"
	"CareFollow/storage/redis"
)

// Window 滑动窗口计数：记录一次请求并返回窗口内的请求数
type Window interface {
	Hit(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error)
}

// RedisWindow 基于 zset 的滑动窗口
type RedisWindow struct {
	client goredis.UniversalClient
}

func NewRedisWindow(client goredis.UniversalClient) *RedisWindow {
	return &RedisWindow{client: client}
}

func (w *RedisWindow) Hit(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	pipe := w.client.Pipeline()
	// 先移除窗口之外的记录
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(now.Add(-window).UnixNano(), 10))
	pipe.ZAdd(ctx, key, goredis.Z{
		Score:  float64(now.UnixNano()),
		Member: now.UnixNano(),
	})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, window+10*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return card.Val(), nil
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Window      time.Duration
	MaxRequests int
	KeyPrefix   string
}

// RateLimit 按调用方服务名限流，未认证时按 IP；Redis 不可用时放行
func RateLimit(w Window, cfg RateLimitConfig, logger *zap.Logger) app.HandlerFunc {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}

	return func(ctx context.Context, c *app.RequestContext) {
		if cfg.MaxRequests <= 0 {
			c.Next(ctx)
			return
		}

		identifier := "ip:" + c.ClientIP()
		if caller, ok := CallerID(c); ok {
			identifier = "svc:" + caller
		}
		key := redis.Key(cfg.KeyPrefix, "rate", identifier)

		now := time.Now()
		count, err := w.Hit(ctx, key, now, cfg.Window)
		if err != nil {
			logger.Warn("Rate limit check failed, allowing request", zap.String("key", key), zap.Error(err))
			c.Next(ctx)
			return
		}

		remaining := int64(cfg.MaxRequests) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Response.Header.Set("X-RateLimit-Limit", strconv.Itoa(cfg.MaxRequests))
		c.Response.Header.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		c.Response.Header.Set("X-RateLimit-Reset", strconv.FormatInt(now.Add(cfg.Window).Unix(), 10))

		if count > int64(cfg.MaxRequests) {
			logger.Info("Rate limit exceeded", zap.String("key", key), zap.Int64("count", count))
			response.Error(ctx, c, errors.TooManyRequests)
			c.Abort()
			return
		}

		c.Next(ctx)
	}
}
