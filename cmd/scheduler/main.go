package main

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"CareFollow/config"
	"CareFollow/internal/bootstrap"
	"CareFollow/internal/cache"
	"CareFollow/internal/schedule"
	"CareFollow/pkg/logger"
	"CareFollow/pkg/snowflake"
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
	log := logger.Named("scheduler")

	ctx, cancel := bootstrap.SignalContext(log)
	defer cancel()

	shutdownTelemetry, err := bootstrap.Telemetry(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer shutdownTelemetry(context.Background())

	// scheduler 不消费 MQ
	if err := storage.Init(cfg, storage.Options{Database: true, Redis: true}); err != nil {
		log.Fatal("Failed to initialize storage for scheduler", zap.Error(err))
	}
	defer storage.Close()

	if err := snowflake.Init(cfg.SnowflakeMachineID, cfg.SnowflakeDataCenter); err != nil {
		log.Fatal("Failed to initialize snowflake for scheduler", zap.Error(err))
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal("Failed to load reminder timezone", zap.Error(err))
	}
	escalateAt, err := config.ParseClock(cfg.EscalationAt)
	if err != nil {
		log.Fatal("Invalid escalation time", zap.Error(err))
	}

	store := bootstrap.Store(cfg, database.DB(), logger.Named("store"))
	gateway, err := bootstrap.Gateway(cfg, database.DB(), logger.Named("push"))
	if err != nil {
		log.Fatal("Failed to initialize push gateway", zap.Error(err))
	}
	locker := cache.NewRedisLocker(redis.Client(), cfg.RedisPrefix)

	dispatcher := schedule.NewDispatcher(store, gateway, cfg.StoreTimeout, logger.Named("dispatcher"))
	escalator := schedule.NewEscalator(store, gateway, schedule.EscalatorOptions{
		Threshold:      cfg.StalenessThreshold,
		StaffRecipient: cfg.StaffRecipient(),
	}, logger.Named("escalator"))

	dispatchRunner := schedule.NewRunner("dispatch", cfg.JobTimeout, locker, log)
	escalateRunner := schedule.NewRunner("escalate", cfg.JobTimeout, locker, log)

	dispatch := func(ctx context.Context) error {
		_, err := dispatcher.Run(ctx)
		return err
	}
	escalate := func(ctx context.Context) error {
		_, err := escalator.Run(ctx)
		return err
	}

	log.Info("Scheduler service starting",
		zap.String("environment", cfg.Environment),
		zap.Duration("dispatch_interval", cfg.DispatchInterval),
		zap.String("escalation_at", cfg.EscalationAt),
		zap.String("timezone", loc.String()),
		zap.Duration("staleness_threshold", cfg.StalenessThreshold),
	)

	loops := []func(context.Context){
		func(ctx context.Context) { runIntervalLoop(ctx, dispatchRunner, cfg.DispatchInterval, dispatch) },
		func(ctx context.Context) { runDailyLoop(ctx, log, escalateRunner, escalateAt, loc, escalate) },
	}
	if cfg.IsDevelopment() {
		// 在 development 环境下，为了方便本地调试，两个任务都改为每 1 分钟执行一次
		log.Info("Scheduler running in development mode with 1m interval")
		loops = []func(context.Context){
			func(ctx context.Context) { runIntervalLoop(ctx, dispatchRunner, time.Minute, dispatch) },
			func(ctx context.Context) { runIntervalLoop(ctx, escalateRunner, time.Minute, escalate) },
		}
	}

	// 收到信号后等进行中的任务把已推送的状态写完，再关闭存储
	runUntilDone(ctx, loops...)

	log.Info("Scheduler service shutting down gracefully")
}

// runUntilDone 并发运行各调度循环，全部返回后才返回
func runUntilDone(ctx context.Context, loops ...func(context.Context)) {
	var wg sync.WaitGroup
	for _, loop := range loops {
		wg.Go(func() { loop(ctx) })
	}
	wg.Wait()
}

// runIntervalLoop 启动时先执行一次，之后按固定间隔执行
func runIntervalLoop(ctx context.Context, r *schedule.Runner, interval time.Duration, job func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		_, _ = r.RunOnce(ctx, job)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runDailyLoop 每天在 loc 时区的 clock 时刻执行一次
func runDailyLoop(ctx context.Context, log *zap.Logger, r *schedule.Runner, clock time.Duration, loc *time.Location, job func(context.Context) error) {
	for {
		now := time.Now()
		next := schedule.NextDailyRun(now, clock, loc)
		delay := next.Sub(now)
		log.Info("Scheduled next escalation run",
			zap.Time("next_run", next),
			zap.Duration("delay", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			_, _ = r.RunOnce(ctx, job)
		}
	}
}
