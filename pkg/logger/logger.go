package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzzap "github.com/hertz-contrib/logger/zap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"CareFollow/config"
)

var (
	// Logger 在 Init 之前是 no-op，库代码可以放心使用
	Logger   = zap.NewNop()
	logClose io.Closer
)

// Init 同时接管 hertz 的 hlog；每条日志都带 service/version/environment，
// 便于在同一个收集端区分 server、worker 和 scheduler 的多个版本
func Init(cfg *config.Config) error {
	ws, err := buildWriteSyncer(cfg.LoggerOutputPath)
	if err != nil {
		return err
	}

	level := zap.NewAtomicLevelAt(parseLevel(cfg.LoggerLevel))
	hzLogger := hertzzap.NewLogger(
		hertzzap.WithCoreEnc(buildEncoder(cfg)),
		hertzzap.WithCoreWs(ws),
		hertzzap.WithCoreLevel(level),
		hertzzap.WithZapOptions(
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
			zap.Fields(
				zap.String("service", cfg.ServiceName),
				zap.String("version", cfg.ServiceVersion),
				zap.String("environment", cfg.Environment),
			),
		),
	)
	hlog.SetLogger(hzLogger)
	hlog.SetLevel(toHlogLevel(level.Level()))

	Logger = hzLogger.Logger()
	Logger.Info("Logger initialized",
		zap.Stringer("level", level.Level()),
		zap.String("format", cfg.LoggerFormat),
		zap.String("output", cfg.LoggerOutputPath),
	)
	return nil
}

func Sync() {
	_ = Logger.Sync()
	if logClose != nil {
		_ = logClose.Close()
		logClose = nil
	}
}

// Named 返回带组件名的子 logger
func Named(component string) *zap.Logger {
	return Logger.With(zap.String("component", component))
}

// buildEncoder development 环境或 LOGGER_FORMAT=text 时输出彩色控制台格式，其余为 JSON
func buildEncoder(cfg *config.Config) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	if cfg.IsDevelopment() || strings.EqualFold(cfg.LoggerFormat, "text") {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(encoderConfig)
	}

	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

func buildWriteSyncer(outputPath string) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(outputPath) {
	case "", "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	}

	file, err := os.OpenFile(outputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", outputPath, err)
	}
	logClose = file
	return zapcore.AddSync(file), nil
}

// parseLevel 无法识别的级别按 INFO 处理
func parseLevel(level string) zapcore.Level {
	l, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

func toHlogLevel(level zapcore.Level) hlog.Level {
	switch {
	case level <= zapcore.DebugLevel:
		return hlog.LevelDebug
	case level == zapcore.InfoLevel:
		return hlog.LevelInfo
	case level == zapcore.WarnLevel:
		return hlog.LevelWarn
	case level == zapcore.ErrorLevel:
		return hlog.LevelError
	default:
		return hlog.LevelFatal
	}
}
