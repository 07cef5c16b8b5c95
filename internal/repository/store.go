package repository

import (
	"context"
	"iter"
	"strings"
	"time"

	"CareFollow/internal/model"
	"CareFollow/pkg/errors"
)

const defaultPageSize = 200

// Store 随访提醒记录的存储接口
//
// Insert 返回 nil / errors.ReminderDuplicate / errors.StoreUnavailable；
// Update 以 expected 状态做条件更新，返回 nil / errors.StateConflict / errors.StoreUnavailable。
// Scan 惰性分页读取，空表返回空序列；序列中出现的错误总是 StoreUnavailable。
type Store interface {
	Scan(ctx context.Context, filter Filter) iter.Seq2[*model.ReminderRecord, error]
	Insert(ctx context.Context, record *model.ReminderRecord) error
	Update(ctx context.Context, id int64, expected model.ReminderStatus, fields Fields) error
}

// Filter 扫描条件，零值字段不参与过滤
type Filter struct {
	PatientID      string
	Statuses       []model.ReminderStatus
	ScheduledUntil time.Time // scheduled_at <= ScheduledUntil
	SentUntil      time.Time // sent_at <= SentUntil

	// AllowReplica 允许读只读副本；驱动状态流转的扫描必须读主库
	AllowReplica bool
}

func (f Filter) match(r *model.ReminderRecord) bool {
	if f.PatientID != "" && r.PatientID != f.PatientID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if r.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.ScheduledUntil.IsZero() && r.ScheduledAt.After(f.ScheduledUntil) {
		return false
	}
	if !f.SentUntil.IsZero() && (r.SentAt == nil || r.SentAt.After(f.SentUntil)) {
		return false
	}
	return true
}

func (f Filter) statusStrings() []string {
	out := make([]string, len(f.Statuses))
	for i, s := range f.Statuses {
		out[i] = string(s)
	}
	return out
}

// Fields 条件更新写入的字段
type Fields struct {
	Status       model.ReminderStatus
	SentAt       *time.Time
	RespondedAt  *time.Time
	ResponseText *string
}

// checkTransition 校验状态单向流转以及各状态必须携带的时间戳
func checkTransition(expected model.ReminderStatus, f Fields) error {
	if !expected.CanTransitionTo(f.Status) {
		return errors.InvalidTransition
	}
	switch f.Status {
	case model.ReminderStatusSent:
		if f.SentAt == nil {
			return errors.Invalid("sent_at is required when marking sent")
		}
	case model.ReminderStatusResponded:
		if f.RespondedAt == nil || f.ResponseText == nil {
			return errors.Invalid("responded_at and response_text are required when marking responded")
		}
	}
	return nil
}

func validateNew(r *model.ReminderRecord) error {
	if r == nil {
		return errors.Invalid("record is nil")
	}
	if strings.TrimSpace(r.PatientID) == "" {
		return errors.Invalid("patient_id is required")
	}
	if !r.ReminderType.Valid() {
		return errors.Invalid("unknown reminder_type %q", r.ReminderType)
	}
	if r.Status == "" {
		r.Status = model.ReminderStatusScheduled
	}
	if r.Status != model.ReminderStatusScheduled {
		return errors.Invalid("new reminders must be scheduled, got %q", r.Status)
	}
	if r.ScheduledAt.IsZero() {
		return errors.Invalid("scheduled_at is required")
	}
	return nil
}

// normalizeLegacy 兼容旧数据：缺失的状态由时间戳推导，缺失的创建时间与发送时间按已有时间补齐
func normalizeLegacy(r *model.ReminderRecord) {
	if !r.Status.Valid() {
		switch {
		case r.RespondedAt != nil:
			r.Status = model.ReminderStatusResponded
		case r.SentAt != nil:
			r.Status = model.ReminderStatusSent
		default:
			r.Status = model.ReminderStatusScheduled
		}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = r.ScheduledAt
	}
	// 已发出的状态必须带 sent_at，否则升级扫描永远匹配不到；取最后更新时间，缺失时取计划时间
	if r.SentAt == nil && r.Status != model.ReminderStatusScheduled {
		sentAt := r.UpdatedAt
		if sentAt.IsZero() {
			sentAt = r.ScheduledAt
		}
		r.SentAt = &sentAt
	}
}
