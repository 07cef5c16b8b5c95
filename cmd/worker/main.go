package main

import (
	"context"

	"go.uber.org/zap"

	"CareFollow/config"
	"CareFollow/internal/bootstrap"
	"CareFollow/internal/cache"
	"CareFollow/internal/queue"
	"CareFollow/internal/service"
	"CareFollow/pkg/logger"
	"CareFollow/storage"
	"CareFollow/storage/database"
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
	log := logger.Named("worker")

	ctx, cancel := bootstrap.SignalContext(log)
	defer cancel()

	shutdownTelemetry, err := bootstrap.Telemetry(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer shutdownTelemetry(context.Background())

	if err := storage.Init(cfg, storage.Options{Database: true, Redis: true, MQ: true}); err != nil {
		log.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal("Failed to load reminder timezone", zap.Error(err))
	}

	store := bootstrap.Store(cfg, database.DB(), logger.Named("store"))
	gateway, err := bootstrap.Gateway(cfg, database.DB(), logger.Named("push"))
	if err != nil {
		log.Fatal("Failed to initialize push gateway", zap.Error(err))
	}

	generator, err := service.NewScheduleGenerator(store, service.ScheduleOptions{
		SendAt:   cfg.ReminderSendAt,
		Location: loc,
	}, logger.Named("schedule"))
	if err != nil {
		log.Fatal("Failed to initialize schedule generator", zap.Error(err))
	}
	recorder := service.NewResponseRecorder(store, gateway, service.ResponseOptions{
		StaffRecipient:  cfg.StaffRecipient(),
		ConcernKeywords: cfg.ConcernKeywords,
	}, logger.Named("response"))

	consumer := queue.NewConsumer(
		generator,
		recorder,
		cache.NewMessageDedup(redis.Client(), cfg.RedisPrefix, 0),
		logger.Named("consumer"),
	)

	log.Info("Worker service starting",
		zap.String("environment", cfg.Environment),
		zap.String("notify_provider", cfg.NotifyProvider),
		zap.String("timezone", loc.String()),
	)

	// 启动所有的消费者部分，ctx 取消后返回
	if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
		log.Error("Consumer stopped unexpectedly", zap.Error(err))
	}

	log.Info("Worker service shutting down gracefully")
}
