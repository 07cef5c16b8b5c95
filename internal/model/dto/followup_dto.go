package dto

import "time"

// ========== 随访相关 DTO ==========

// DischargeRequest 出院登记
type DischargeRequest struct {
	PatientID   string    `json:"patient_id"`
	DischargeAt time.Time `json:"discharge_time"`
}

// PatientMessageRequest 患者回复；timestamp 缺省时取服务端收到的时间
type PatientMessageRequest struct {
	PatientID  string     `json:"patient_id"`
	Text       string     `json:"text"`
	ReceivedAt *time.Time `json:"timestamp,omitempty"`
}

// AcceptedData 事件已入队
type AcceptedData struct {
	MessageID string `json:"message_id"`
}

// HealthData 健康检查结果
type HealthData struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}
