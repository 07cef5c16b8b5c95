package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"CareFollow/internal/model"
	"CareFollow/internal/service"
	"CareFollow/pkg/errors"
	"CareFollow/pkg/metrics"
	"CareFollow/storage/mq"
)

// Deduper 由 cache.MessageDedup 实现
type Deduper interface {
	TryMarkProcessing(ctx context.Context, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, messageID string) error
	Unmark(ctx context.Context, messageID string) error
}

type ScheduleGenerator interface {
	GenerateSchedule(ctx context.Context, patientID string, dischargeAt time.Time) (service.ScheduleResult, error)
}

type ResponseRecorder interface {
	RecordResponse(ctx context.Context, patientID, text string, receivedAt time.Time) (bool, error)
}

type Consumer struct {
	generator ScheduleGenerator
	recorder  ResponseRecorder
	dedup     Deduper
	prefetch  int
	logger    *zap.Logger
}

// NewConsumer dedup 可为 nil；此时重复投递依赖存储层的唯一约束与条件更新
func NewConsumer(generator ScheduleGenerator, recorder ResponseRecorder, dedup Deduper, logger *zap.Logger) *Consumer {
	return &Consumer{
		generator: generator,
		recorder:  recorder,
		dedup:     dedup,
		prefetch:  10,
		logger:    logger,
	}
}

// Start 启动全部消费者，任一退出即返回
func (c *Consumer) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return mq.Consume(ctx, mq.ConsumeOptions{
			Queue:         mq.QueueDischarge,
			ConsumerTag:   "discharge_consumer",
			PrefetchCount: c.prefetch,
			Handler:       c.HandleDischarge,
		})
	})
	g.Go(func() error {
		return mq.Consume(ctx, mq.ConsumeOptions{
			Queue:         mq.QueuePatientMessage,
			ConsumerTag:   "patient_message_consumer",
			PrefetchCount: c.prefetch,
			Handler:       c.HandlePatientMessage,
		})
	})
	return g.Wait()
}

func (c *Consumer) HandleDischarge(ctx context.Context, body []byte) error {
	var msg model.DischargeEvent
	if err := json.Unmarshal(body, &msg); err != nil {
		return errors.Invalid("malformed discharge event: %v", err)
	}

	return c.once(ctx, mq.QueueDischarge, msg.MessageID, func() error {
		result, err := c.generator.GenerateSchedule(ctx, msg.PatientID, msg.DischargeAt)
		if err != nil {
			return fmt.Errorf("generate schedule for %s: %w", msg.PatientID, err)
		}
		c.logger.Info("Processed discharge event",
			zap.String("message_id", msg.MessageID),
			zap.String("patient_id", msg.PatientID),
			zap.Int("created", result.Created),
			zap.Int("skipped", result.Skipped),
		)
		return nil
	})
}

func (c *Consumer) HandlePatientMessage(ctx context.Context, body []byte) error {
	var msg model.PatientMessageEvent
	if err := json.Unmarshal(body, &msg); err != nil {
		return errors.Invalid("malformed patient message event: %v", err)
	}

	return c.once(ctx, mq.QueuePatientMessage, msg.MessageID, func() error {
		matched, err := c.recorder.RecordResponse(ctx, msg.PatientID, msg.Text, msg.ReceivedAt)
		if err != nil {
			return fmt.Errorf("record response for %s: %w", msg.PatientID, err)
		}
		if !matched {
			// 没有待回复的提醒，消息交由人工渠道处理
			c.logger.Info("Patient message matched no sent reminder",
				zap.String("message_id", msg.MessageID),
				zap.String("patient_id", msg.PatientID),
			)
		}
		return nil
	})
}

// once 按 message_id 去重执行 fn；fn 失败时撤销标记，允许重投后再次处理
func (c *Consumer) once(ctx context.Context, queue, messageID string, fn func() error) error {
	if c.dedup == nil || messageID == "" {
		return fn()
	}

	first, err := c.dedup.TryMarkProcessing(ctx, messageID)
	switch {
	case err != nil:
		// 去重不可用时照常处理，存储层保证不会产生重复记录
		c.logger.Warn("Failed to check message processed status",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	case !first:
		metrics.RecordDuplicateMessage(ctx, queue)
		return &errors.SkipMessageError{Reason: fmt.Sprintf("message %s already processed", messageID)}
	}

	if err := fn(); err != nil {
		if unmarkErr := c.dedup.Unmark(ctx, messageID); unmarkErr != nil {
			c.logger.Warn("Failed to unmark message",
				zap.String("message_id", messageID),
				zap.Error(unmarkErr),
			)
		}
		return err
	}

	if err := c.dedup.MarkProcessed(ctx, messageID); err != nil {
		c.logger.Warn("Failed to mark message as processed",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
	return nil
}
