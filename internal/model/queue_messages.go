package model

import "time"

// DischargeEvent 出院登记流程投递的事件
type DischargeEvent struct {
	MessageID   string    `json:"message_id"` // 消息唯一ID，用于幂等性检查
	PatientID   string    `json:"patient_id"`
	DischargeAt time.Time `json:"discharge_time"`
}

// PatientMessageEvent 消息路由转发的患者回复
type PatientMessageEvent struct {
	MessageID  string    `json:"message_id"`
	PatientID  string    `json:"patient_id"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"timestamp"`
}
