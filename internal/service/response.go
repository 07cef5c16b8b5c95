package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"CareFollow/internal/model"
	"CareFollow/internal/repository"
	"CareFollow/pkg/errors"
	"CareFollow/pkg/metrics"
)

// ResponseOptions 回复处理配置
type ResponseOptions struct {
	// StaffRecipient 关注告警接收方，为空时由网关使用默认接收方
	StaffRecipient  string
	ConcernKeywords []string
}

// ResponseRecorder 把患者回复匹配到最近一条已发送的提醒
type ResponseRecorder struct {
	store    repository.Store
	notifier Notifier
	opts     ResponseOptions
	logger   *zap.Logger
	now      func() time.Time
}

func NewResponseRecorder(store repository.Store, notifier Notifier, opts ResponseOptions, logger *zap.Logger) *ResponseRecorder {
	return &ResponseRecorder{
		store:    store,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// RecordResponse 将最近发送的提醒标记为 responded；没有待回复的提醒时返回 false
func (r *ResponseRecorder) RecordResponse(ctx context.Context, patientID, text string, receivedAt time.Time) (bool, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return false, errors.Invalid("patient_id is required")
	}
	if strings.TrimSpace(text) == "" {
		return false, errors.Invalid("response text is required")
	}
	if receivedAt.IsZero() {
		receivedAt = r.now()
	}

	candidates, err := r.sentReminders(ctx, patientID)
	if err != nil {
		return false, err
	}
	if len(candidates) == 0 {
		r.logger.Info("No pending reminder for patient message", zap.String("patient_id", patientID))
		return false, nil
	}

	// 条件更新失败说明该提醒已被并发升级，依次尝试下一条
	for _, rec := range candidates {
		responseText := text
		err := r.store.Update(ctx, rec.ID, model.ReminderStatusSent, repository.Fields{
			Status:       model.ReminderStatusResponded,
			RespondedAt:  &receivedAt,
			ResponseText: &responseText,
		})
		if errors.Is(err, errors.StateConflict) {
			metrics.RecordConflict(ctx, "response")
			r.logger.Debug("Reminder already transitioned, trying next",
				zap.Int64("reminder_id", rec.ID),
				zap.String("patient_id", patientID),
			)
			continue
		}
		if err != nil {
			return false, err
		}

		metrics.RecordTransition(ctx, string(model.ReminderStatusResponded), string(rec.ReminderType), 1)
		r.logger.Info("Recorded reminder response",
			zap.Int64("reminder_id", rec.ID),
			zap.String("patient_id", patientID),
			zap.String("reminder_type", string(rec.ReminderType)),
		)
		r.checkConcern(ctx, patientID, rec.ReminderType, text)
		return true, nil
	}

	r.logger.Info("All pending reminders transitioned concurrently", zap.String("patient_id", patientID))
	return false, nil
}

// sentReminders 待回复的提醒，sent_at 最新的在前，相同时偏移小的在前
func (r *ResponseRecorder) sentReminders(ctx context.Context, patientID string) ([]*model.ReminderRecord, error) {
	var out []*model.ReminderRecord
	for rec, err := range r.store.Scan(ctx, repository.Filter{
		PatientID: patientID,
		Statuses:  []model.ReminderStatus{model.ReminderStatusSent},
	}) {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := sentAt(out[i]), sentAt(out[j])
		if !a.Equal(b) {
			return a.After(b)
		}
		return out[i].ReminderType.Days() < out[j].ReminderType.Days()
	})
	return out, nil
}

func (r *ResponseRecorder) checkConcern(ctx context.Context, patientID string, t model.ReminderType, text string) {
	if !ContainsConcern(text, r.opts.ConcernKeywords) {
		return
	}

	r.logger.Warn("Concerning response detected",
		zap.String("patient_id", patientID),
		zap.String("reminder_type", string(t)),
	)
	delivered := r.notifier.Send(ctx, ConcernAlert(patientID, t, text), r.opts.StaffRecipient)
	metrics.RecordConcernAlert(ctx, delivered)
	if !delivered {
		r.logger.Warn("Failed to alert staff about concerning response",
			zap.String("patient_id", patientID),
			zap.String("failure", "notification"),
		)
	}
}

func sentAt(r *model.ReminderRecord) time.Time {
	if r.SentAt == nil {
		return time.Time{}
	}
	return *r.SentAt
}
