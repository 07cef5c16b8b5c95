package model

import (
	"time"
)

// ReminderType 随访提醒类型，对应出院后的固定偏移
type ReminderType string

const (
	ReminderTypeDay3  ReminderType = "day3"
	ReminderTypeDay7  ReminderType = "day7"
	ReminderTypeDay14 ReminderType = "day14"
	ReminderTypeDay30 ReminderType = "day30"
)

// ReminderTypes 按偏移从小到大排列
var ReminderTypes = []ReminderType{
	ReminderTypeDay3,
	ReminderTypeDay7,
	ReminderTypeDay14,
	ReminderTypeDay30,
}

var reminderDays = map[ReminderType]int{
	ReminderTypeDay3:  3,
	ReminderTypeDay7:  7,
	ReminderTypeDay14: 14,
	ReminderTypeDay30: 30,
}

// Days 出院后第几天
func (t ReminderType) Days() int {
	return reminderDays[t]
}

// Offset 相对出院时间的偏移
func (t ReminderType) Offset() time.Duration {
	return time.Duration(reminderDays[t]) * 24 * time.Hour
}

func (t ReminderType) Valid() bool {
	_, ok := reminderDays[t]
	return ok
}

// ReminderStatus 提醒状态：scheduled -> sent -> responded | no_response
type ReminderStatus string

const (
	ReminderStatusScheduled  ReminderStatus = "scheduled"
	ReminderStatusSent       ReminderStatus = "sent"
	ReminderStatusResponded  ReminderStatus = "responded"
	ReminderStatusNoResponse ReminderStatus = "no_response"
)

// CanTransitionTo 状态只允许单向前进
func (s ReminderStatus) CanTransitionTo(next ReminderStatus) bool {
	switch s {
	case ReminderStatusScheduled:
		return next == ReminderStatusSent
	case ReminderStatusSent:
		return next == ReminderStatusResponded || next == ReminderStatusNoResponse
	default:
		return false
	}
}

func (s ReminderStatus) Valid() bool {
	switch s {
	case ReminderStatusScheduled, ReminderStatusSent, ReminderStatusResponded, ReminderStatusNoResponse:
		return true
	default:
		return false
	}
}

// ReminderRecord 每个 (patient_id, reminder_type) 仅一行，不做删除
type ReminderRecord struct {
	ID           int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	PatientID    string         `gorm:"type:varchar(64);not null;uniqueIndex:uk_reminder_records_patient_type,priority:1" json:"patient_id"`
	ReminderType ReminderType   `gorm:"type:varchar(16);not null;uniqueIndex:uk_reminder_records_patient_type,priority:2" json:"reminder_type"`
	DischargeAt  *time.Time     `gorm:"type:timestamptz" json:"discharge_at,omitempty"`
	ScheduledAt  time.Time      `gorm:"type:timestamptz;not null;index:idx_reminder_records_due,priority:2" json:"scheduled_at"`
	Status       ReminderStatus `gorm:"type:varchar(16);not null;default:'scheduled';index:idx_reminder_records_due,priority:1;index:idx_reminder_records_stale,priority:1" json:"status"`
	SentAt       *time.Time     `gorm:"type:timestamptz;index:idx_reminder_records_stale,priority:2" json:"sent_at,omitempty"`
	RespondedAt  *time.Time     `gorm:"type:timestamptz" json:"responded_at,omitempty"`
	ResponseText *string        `gorm:"type:text" json:"response_text,omitempty"`
	Notes        *string        `gorm:"type:varchar(255)" json:"notes,omitempty"`
	CreatedAt    time.Time      `gorm:"type:timestamptz;not null;default:now()" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"type:timestamptz;not null;default:now()" json:"updated_at"`
}

// TableName 指定表名
func (ReminderRecord) TableName() string {
	return "reminder_records"
}

// Clone 深拷贝，避免调用方修改存储中的指针字段
func (r *ReminderRecord) Clone() *ReminderRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.DischargeAt = cloneTime(r.DischargeAt)
	c.SentAt = cloneTime(r.SentAt)
	c.RespondedAt = cloneTime(r.RespondedAt)
	c.ResponseText = cloneString(r.ResponseText)
	c.Notes = cloneString(r.Notes)
	return &c
}

// Summary 患者随访状态汇总，只读投影
type Summary struct {
	PatientID       string          `json:"patient_id"`
	Total           int             `json:"total"`
	RespondedCount  int             `json:"responded_count"`
	PendingCount    int             `json:"pending_count"` // 已发送、等待回复
	NoResponseCount int             `json:"no_response_count"`
	ScheduledCount  int             `json:"scheduled_count"` // 尚未发送
	Latest          *ReminderRecord `json:"latest"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
