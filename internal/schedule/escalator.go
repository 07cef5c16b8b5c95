package schedule

// 未回复升级：sent 超过阈值仍未回复的提醒标记为 no_response，并按患者汇总通知护士站

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

// EscalationResult 一次升级的统计
type EscalationResult struct {
	RunID        int64 `json:"run_id"`
	Found        int   `json:"found"`
	Escalated    int   `json:"escalated"`
	Conflicts    int   `json:"conflicts"`
	Failed       int   `json:"failed"`
	Notified     int   `json:"notified"`
	NotifyFailed int   `json:"notify_failed"`
}

// EscalatorOptions 升级配置
type EscalatorOptions struct {
	Threshold time.Duration
	// StaffRecipient 为空时由网关使用默认接收方
	StaffRecipient string
}

type Escalator struct {
	store    repository.Store
	notifier service.Notifier
	opts     EscalatorOptions
	logger   *zap.Logger
	now      func() time.Time
}

func NewEscalator(store repository.Store, notifier service.Notifier, opts EscalatorOptions, logger *zap.Logger) *Escalator {
	if opts.Threshold <= 0 {
		opts.Threshold = 24 * time.Hour
	}
	return &Escalator{
		store:    store,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// escalations 按患者聚合已升级的提醒类型，保持首次出现顺序
type escalations struct {
	order []string
	types map[string][]model.ReminderType
}

func (e *escalations) add(patientID string, t model.ReminderType) {
	if e.types == nil {
		e.types = make(map[string][]model.ReminderType)
	}
	if _, ok := e.types[patientID]; !ok {
		e.order = append(e.order, patientID)
	}
	e.types[patientID] = append(e.types[patientID], t)
}

// Run 状态流转是事实本身，通知失败不回滚；中途中止时已升级的患者仍会被通知
func (e *Escalator) Run(ctx context.Context) (EscalationResult, error) {
	result := EscalationResult{RunID: snowflake.RunID()}
	log := e.logger.With(zap.Int64("run_id", result.RunID))
	cutoff := e.now().Add(-e.opts.Threshold)

	log.Info("Starting no-response escalation", zap.Time("sent_before", cutoff))

	var pending escalations
	err := e.escalate(ctx, log, cutoff, &pending, &result)
	e.notify(ctx, log, &pending, &result)

	if err != nil {
		log.Error("No-response escalation aborted",
			zap.Any("result", result),
			zap.Error(err),
		)
		return result, err
	}

	log.Info("No-response escalation completed",
		zap.Int("found", result.Found),
		zap.Int("escalated", result.Escalated),
		zap.Int("conflicts", result.Conflicts),
		zap.Int("failed", result.Failed),
		zap.Int("notified", result.Notified),
		zap.Int("notify_failed", result.NotifyFailed),
	)
	return result, nil
}

func (e *Escalator) escalate(ctx context.Context, log *zap.Logger, cutoff time.Time, pending *escalations, result *EscalationResult) error {
	stale := repository.Filter{
		Statuses:  []model.ReminderStatus{model.ReminderStatusSent},
		SentUntil: cutoff,
	}
	for rec, err := range e.store.Scan(ctx, stale) {
		if err != nil {
			log.Error("Stale reminder scan failed", zap.String("failure", "store"), zap.Error(err))
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if bs, ok := e.store.(breakerState); ok && bs.Open() {
			return errors.Unavailable("escalate", errors.ErrBreakerOpen)
		}

		result.Found++
		err := e.store.Update(ctx, rec.ID, model.ReminderStatusSent, repository.Fields{
			Status: model.ReminderStatusNoResponse,
		})
		switch {
		case err == nil:
			result.Escalated++
			pending.add(rec.PatientID, rec.ReminderType)
			metrics.RecordTransition(ctx, string(model.ReminderStatusNoResponse), string(rec.ReminderType), 1)
		case errors.Is(err, errors.StateConflict):
			// 患者在扫描期间回复了
			result.Conflicts++
			metrics.RecordConflict(ctx, "escalator")
			log.Debug("Reminder already transitioned, not escalated",
				zap.Int64("reminder_id", rec.ID),
				zap.String("patient_id", rec.PatientID),
			)
		default:
			result.Failed++
			log.Error("Failed to mark reminder as no_response",
				zap.Int64("reminder_id", rec.ID),
				zap.String("patient_id", rec.PatientID),
				zap.String("failure", "store"),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (e *Escalator) notify(ctx context.Context, log *zap.Logger, pending *escalations, result *EscalationResult) {
	// 已升级的事实必须通知到，不受批次取消影响；每次推送由网关超时兜底
	notifyCtx := context.WithoutCancel(ctx)

	for _, patientID := range pending.order {
		types := pending.types[patientID]
		msg := service.NoResponseAlert(patientID, types, e.opts.Threshold)
		if e.notifier.Send(notifyCtx, msg, e.opts.StaffRecipient) {
			result.Notified++
			log.Info("Sent no-response alert",
				zap.String("patient_id", patientID),
				zap.Int("reminders", len(types)),
			)
			continue
		}

		result.NotifyFailed++
		log.Warn("Failed to send no-response alert",
			zap.String("patient_id", patientID),
			zap.Int("reminders", len(types)),
			zap.String("failure", "notification"),
		)
	}
}
