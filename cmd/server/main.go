package main

import (
	"context"
	"net"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"go.uber.org/zap"

	"CareFollow/config"
	"CareFollow/internal/bootstrap"
	"CareFollow/internal/handler"
	"CareFollow/internal/middleware"
	"CareFollow/internal/queue"
	"CareFollow/internal/router"
	"CareFollow/internal/service"
	"CareFollow/pkg/errors"
	"CareFollow/pkg/logger"
	"CareFollow/storage"
	"CareFollow/storage/database"
	"CareFollow/storage/mq"
	"CareFollow/storage/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	if err := logger.Init(cfg); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Named("server")

	ctx, cancel := bootstrap.SignalContext(log)
	defer cancel()

	shutdownTelemetry, err := bootstrap.Telemetry(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer shutdownTelemetry(context.Background())

	// 初始化存储层，记得关闭外部连接
	if err := storage.Init(cfg, storage.Options{Database: true, Redis: true, MQ: true}); err != nil {
		log.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	if err := database.Migrate(); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}

	store := bootstrap.Store(cfg, database.DB(), logger.Named("store"))
	h := handler.New(
		queue.NewProducer(mq.Publish, logger.Named("producer")),
		service.NewSummaryAggregator(store),
		map[string]handler.HealthCheck{
			"database": func(ctx context.Context) error {
				sqlDB, err := database.DB().DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
			"redis": func(ctx context.Context) error {
				return redis.Client().Ping(ctx).Err()
			},
			"rabbitmq": func(ctx context.Context) error {
				if conn := mq.Connection(); conn == nil || conn.IsClosed() {
					return errors.ErrMQConnectionNil
				}
				return nil
			},
		},
		logger.Named("handler"),
	)

	auth, err := middleware.NewAuth(cfg, logger.Named("auth"))
	if err != nil {
		log.Fatal("Failed to initialize auth middleware", zap.Error(err))
	}
	mw := router.Middlewares{
		Recover: middleware.Recover(logger.Named("recover"), !cfg.IsProduction()),
		Auth:    auth,
		RateLimit: middleware.RateLimit(
			middleware.NewRedisWindow(redis.Client()),
			middleware.RateLimitConfig{Window: time.Minute, MaxRequests: cfg.RateLimitPerMin, KeyPrefix: cfg.RedisPrefix},
			logger.Named("ratelimit"),
		),
	}

	addr := net.JoinHostPort(cfg.ServerHost, cfg.ServerPort)
	opts := []hertzconfig.Option{server.WithHostPorts(addr)}
	if cfg.OTelEnabled {
		tracer, tracing := middleware.NewServerTracerConfig()
		opts = append(opts, tracer)
		mw.Tracing = tracing

		if mw.Metrics, err = middleware.HTTPMetrics(); err != nil {
			log.Fatal("Failed to initialize HTTP metrics", zap.Error(err))
		}
	}

	hz := server.Default(opts...)
	router.Register(hz.Engine, h, mw)

	// 优雅关闭：在单独的 goroutine 中监听关闭信号并调用 Shutdown
	go func() {
		<-ctx.Done()
		log.Info("Initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := hz.Shutdown(shutdownCtx); err != nil {
			log.Error("Failed to shutdown HTTP server", zap.Error(err))
		}
	}()

	log.Info("HTTP server listening",
		zap.String("addr", addr),
		zap.String("environment", cfg.Environment),
		zap.Bool("auth_enabled", cfg.AuthEnabled),
	)

	hz.Spin()

	log.Info("Server shutting down gracefully")
}
