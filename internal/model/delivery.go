package model

import (
	"time"

	"gorm.io/datatypes"
)

// DeliveryAttempt 每次推送调用的审计记录
type DeliveryAttempt struct {
	BaseModel
	Recipient   string    `gorm:"type:varchar(64);not null;index:idx_delivery_attempts_recipient" json:"recipient"`
	Provider    string    `gorm:"type:varchar(16);not null" json:"provider"`
	Outcome     string    `gorm:"type:varchar(16);not null;index:idx_delivery_attempts_outcome" json:"outcome"`
	ReasonCode  *string   `gorm:"type:varchar(32)" json:"reason_code,omitempty"`
	StatusCode  *int      `gorm:"type:smallint" json:"status_code,omitempty"`
	DurationMS  int64     `gorm:"not null;default:0" json:"duration_ms"`
	AttemptedAt time.Time `gorm:"type:timestamptz;not null;default:now()" json:"attempted_at"`
	// Detail 失败时的错误描述与通道返回的原始说明，不含消息正文
	Detail datatypes.JSONMap `gorm:"type:jsonb" json:"detail,omitempty"`
}

// TableName 指定表名
func (DeliveryAttempt) TableName() string {
	return "delivery_attempts"
}
