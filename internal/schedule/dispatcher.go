package schedule

// 到期提醒派发：扫描 scheduled 且已到期的提醒，推送成功后条件更新为 sent

import (
	"context"
	"time"

	"go.uber.org/zap"

	"CareFollow/internal/model"
	"CareFollow/internal/repository"
	"CareFollow/internal/service"
	"CareFollow/pkg/errors"
	"CareFollow/pkg/metrics"
	"CareFollow/pkg/snowflake"
)

// DispatchResult 一次派发的统计
type DispatchResult struct {
	RunID     int64 `json:"run_id"`
	Found     int   `json:"found"`
	Sent      int   `json:"sent"`
	Failed    int   `json:"failed"`
	Conflicts int   `json:"conflicts"`
}

// breakerState 由 repository.GuardedStore 实现
type breakerState interface {
	Open() bool
}

type Dispatcher struct {
	store        repository.Store
	notifier     service.Notifier
	storeTimeout time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

func NewDispatcher(store repository.Store, notifier service.Notifier, storeTimeout time.Duration, logger *zap.Logger) *Dispatcher {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Dispatcher{
		store:        store,
		notifier:     notifier,
		storeTimeout: storeTimeout,
		logger:       logger,
		now:          time.Now,
	}
}

// Run 单条记录的失败不会中止批次；只有存储连接丢失或 ctx 结束才提前返回
func (d *Dispatcher) Run(ctx context.Context) (DispatchResult, error) {
	result := DispatchResult{RunID: snowflake.RunID()}
	log := d.logger.With(zap.Int64("run_id", result.RunID))
	now := d.now()

	log.Info("Starting reminder dispatch", zap.Time("due_before", now))

	due := repository.Filter{
		Statuses:       []model.ReminderStatus{model.ReminderStatusScheduled},
		ScheduledUntil: now,
	}
	for rec, err := range d.store.Scan(ctx, due) {
		if err != nil {
			log.Error("Reminder scan failed, aborting dispatch run",
				zap.String("failure", "store"),
				zap.Any("result", result),
				zap.Error(err),
			)
			return result, err
		}
		if err := ctx.Err(); err != nil {
			log.Warn("Dispatch run interrupted, remaining reminders deferred to next run",
				zap.Any("result", result),
				zap.Error(err),
			)
			return result, err
		}
		if bs, ok := d.store.(breakerState); ok && bs.Open() {
			log.Error("Record store unavailable, aborting dispatch run",
				zap.String("failure", "store"),
				zap.Any("result", result),
			)
			return result, errors.Unavailable("dispatch", errors.ErrBreakerOpen)
		}

		result.Found++
		d.dispatch(ctx, log, rec, &result)
	}

	log.Info("Reminder dispatch completed",
		zap.Int("found", result.Found),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("conflicts", result.Conflicts),
	)
	return result, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, log *zap.Logger, rec *model.ReminderRecord, result *DispatchResult) {
	fields := []zap.Field{
		zap.Int64("reminder_id", rec.ID),
		zap.String("patient_id", rec.PatientID),
		zap.String("reminder_type", string(rec.ReminderType)),
	}

	if !d.notifier.Send(ctx, service.ReminderMessage(rec.ReminderType), rec.PatientID) {
		result.Failed++
		log.Warn("Reminder delivery failed, left scheduled for next run",
			append(fields, zap.String("failure", "notification"))...,
		)
		return
	}

	// 消息已发出，状态写入不随 ctx 取消而放弃
	sentAt := d.now()
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.storeTimeout)
	err := d.store.Update(writeCtx, rec.ID, model.ReminderStatusScheduled, repository.Fields{
		Status: model.ReminderStatusSent,
		SentAt: &sentAt,
	})
	cancel()

	switch {
	case err == nil:
		result.Sent++
		metrics.RecordTransition(ctx, string(model.ReminderStatusSent), string(rec.ReminderType), 1)
		log.Debug("Reminder sent", fields...)
	case errors.Is(err, errors.StateConflict):
		result.Conflicts++
		metrics.RecordConflict(ctx, "dispatcher")
		log.Debug("Reminder already transitioned by another writer", fields...)
	default:
		// 已发送但状态未落库，下次运行会重复发送
		result.Failed++
		log.Error("Reminder sent but state write failed, it may be delivered again",
			append(fields, zap.String("failure", "store"), zap.Error(err))...,
		)
	}
}
