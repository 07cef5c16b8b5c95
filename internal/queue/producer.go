package queue

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"CareFollow/internal/model"
	"CareFollow/pkg/errors"
	"CareFollow/storage/mq"
)

// PublishFunc 与 mq.Publish 同签名，测试中可替换
type PublishFunc func(ctx context.Context, exchange, routingKey, messageID string, body any) error

type Producer struct {
	publish PublishFunc
	logger  *zap.Logger
}

func NewProducer(publish PublishFunc, logger *zap.Logger) *Producer {
	return &Producer{publish: publish, logger: logger}
}

// PublishDischarge 发布出院事件，返回消息 ID
func (p *Producer) PublishDischarge(ctx context.Context, patientID string, dischargeAt time.Time) (string, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return "", errors.Invalid("patient_id is required")
	}
	if dischargeAt.IsZero() {
		return "", errors.Invalid("discharge_time is required")
	}

	msg := model.DischargeEvent{
		MessageID:   uuid.NewString(),
		PatientID:   patientID,
		DischargeAt: dischargeAt,
	}
	if err := p.publish(ctx, mq.ExchangeFollowUp, mq.RoutingDischarge, msg.MessageID, msg); err != nil {
		p.logger.Error("Failed to publish discharge event",
			zap.String("patient_id", patientID),
			zap.Error(err),
		)
		return "", err
	}

	p.logger.Info("Published discharge event",
		zap.String("message_id", msg.MessageID),
		zap.String("patient_id", patientID),
		zap.Time("discharge_time", dischargeAt),
	)
	return msg.MessageID, nil
}

// PublishPatientMessage 发布患者回复事件；receivedAt 为零值时取当前时间
func (p *Producer) PublishPatientMessage(ctx context.Context, patientID, text string, receivedAt time.Time) (string, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return "", errors.Invalid("patient_id is required")
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.Invalid("text is required")
	}
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	msg := model.PatientMessageEvent{
		MessageID:  uuid.NewString(),
		PatientID:  patientID,
		Text:       text,
		ReceivedAt: receivedAt,
	}
	if err := p.publish(ctx, mq.ExchangeFollowUp, mq.RoutingPatientMessage, msg.MessageID, msg); err != nil {
		p.logger.Error("Failed to publish patient message event",
			zap.String("patient_id", patientID),
			zap.Error(err),
		)
		return "", err
	}

	p.logger.Info("Published patient message event",
		zap.String("message_id", msg.MessageID),
		zap.String("patient_id", patientID),
	)
	return msg.MessageID, nil
}
