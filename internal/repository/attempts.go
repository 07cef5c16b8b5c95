package repository

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"CareFollow/internal/model"
	"CareFollow/pkg/errors"
	"CareFollow/pkg/push"
)

const maxDetailLength = 512

// AttemptLog 将网关投递结果写入 delivery_attempts，写入失败只记日志
type AttemptLog struct {
	db      *gorm.DB
	timeout time.Duration
	logger  *zap.Logger
}

func NewAttemptLog(db *gorm.DB, timeout time.Duration, logger *zap.Logger) *AttemptLog {
	return &AttemptLog{db: db, timeout: timeout, logger: logger}
}

// Observe 实现 push.Observer
func (l *AttemptLog) Observe(ctx context.Context, res push.Result) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	if err := l.db.WithContext(ctx).Create(AttemptFromResult(res)).Error; err != nil {
		l.logger.Warn("Failed to record delivery attempt",
			zap.String("recipient", res.Recipient),
			zap.String("outcome", string(res.Outcome)),
			zap.Error(err),
		)
	}
}

// AttemptFromResult 投递结果转审计记录
func AttemptFromResult(res push.Result) *model.DeliveryAttempt {
	a := &model.DeliveryAttempt{
		Recipient:   res.Recipient,
		Provider:    res.Provider,
		Outcome:     string(res.Outcome),
		DurationMS:  res.Duration.Milliseconds(),
		AttemptedAt: res.AttemptedAt,
	}
	if code := res.ReasonCode(); code != "" {
		a.ReasonCode = &code
	}
	if res.StatusCode != 0 {
		status := res.StatusCode
		a.StatusCode = &status
	}
	if res.Err != nil {
		a.Detail = datatypes.JSONMap{"error": truncate(res.Err.Error())}
		var de *push.DeliveryError
		if errors.As(res.Err, &de) && de.Detail != "" {
			a.Detail["provider_detail"] = truncate(de.Detail)
		}
	}
	return a
}

func truncate(s string) string {
	if len(s) <= maxDetailLength {
		return s
	}
	return strings.ToValidUTF8(s[:maxDetailLength], "")
}
