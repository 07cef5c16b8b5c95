// Package bootstrap 汇总各进程共用的组装逻辑，cmd/* 只负责选择要启动的组件
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"CareFollow/config"
	"CareFollow/internal/repository"
	"CareFollow/pkg/breaker"
	"CareFollow/pkg/metrics"
	"CareFollow/pkg/otel"
	"CareFollow/pkg/push"
)

const (
	storeMaxFailures  = 5
	storeResetTimeout = 30 * time.Second
)

// SignalContext 收到 SIGINT/SIGTERM 时取消
func SignalContext(logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// Telemetry 初始化链路追踪与指标；未开启时返回空的清理函数
func Telemetry(ctx context.Context, cfg *config.Config, logger *zap.Logger) (func(context.Context), error) {
	noop := func(context.Context) {}
	if !cfg.OTelEnabled {
		return noop, nil
	}

	shutdown, err := otel.InitOpenTelemetry(ctx, otel.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTelEndpoint,
		SampleRatio:    cfg.OTelSampleRatio,
	})
	if err != nil {
		return noop, fmt.Errorf("failed to initialize opentelemetry: %w", err)
	}
	if err := metrics.InitMetrics(); err != nil {
		_ = shutdown(ctx)
		return noop, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	logger.Info("OpenTelemetry initialized",
		zap.String("endpoint", cfg.OTelEndpoint),
		zap.Float64("sample_ratio", cfg.OTelSampleRatio),
	)
	return func(ctx context.Context) {
		if err := shutdown(ctx); err != nil {
			logger.Warn("Failed to shutdown OpenTelemetry", zap.Error(err))
		}
	}, nil
}

// Store 带熔断的提醒存储，熔断器只统计连接类错误
func Store(cfg *config.Config, db *gorm.DB, logger *zap.Logger) *repository.GuardedStore {
	cb := breaker.New("record-store", storeMaxFailures, storeResetTimeout, logger,
		breaker.WithFailureFilter(repository.IsStoreFailure),
	)
	return repository.NewGuardedStore(repository.NewGormStore(db, cfg.StoreTimeout), cb)
}

// Gateway 按 NOTIFY_PROVIDER 选择推送通道；投递结果写审计表并计入指标
func Gateway(cfg *config.Config, db *gorm.DB, logger *zap.Logger) (*push.Gateway, error) {
	transport, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}

	observers := []push.Observer{push.ObserverFunc(metrics.ObserveDelivery)}
	if db != nil {
		observers = append(observers, repository.NewAttemptLog(db, cfg.StoreTimeout, logger))
	}

	logger.Info("Push gateway configured",
		zap.String("provider", transport.Name()),
		zap.Duration("timeout", cfg.NotifyTimeout),
	)
	return push.NewGateway(push.Config{
		Credential:         cfg.GatewayCredential(),
		DefaultRecipient:   cfg.NurseGroupID,
		Timeout:            cfg.NotifyTimeout,
		MinRecipientLength: cfg.RecipientMinLength,
	}, transport, logger, observers...), nil
}

func newTransport(cfg *config.Config) (push.Transport, error) {
	switch cfg.NotifyProvider {
	case "aliyun":
		return push.NewAliyunSMSTransport(cfg.SMSSignName, cfg.SMSTemplateCode, cfg.NotifyTimeout)
	case "mock":
		return push.NewMockTransport(), nil
	case "line", "":
		return push.NewLineTransport(cfg.LinePushEndpoint, cfg.LineChannelAccessToken, cfg.NotifyTimeout)
	default:
		return nil, fmt.Errorf("unsupported notify provider %q", cfg.NotifyProvider)
	}
}
