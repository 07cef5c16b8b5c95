package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"CareFollow/pkg/errors"
	"CareFollow/pkg/logger"
	"CareFollow/pkg/metrics"
)

type MessageHandler func(ctx context.Context, body []byte) error

type ConsumeOptions struct {
	Queue         string
	ConsumerTag   string
	PrefetchCount int
	Handler       MessageHandler
}

type action int

const (
	actionAck action = iota
	actionRequeue
	actionReject
)

func (a action) String() string {
	switch a {
	case actionAck:
		return "ack"
	case actionRequeue:
		return "requeue"
	default:
		return "reject"
	}
}

// decide 重复消息 ack；输入非法的消息重投也不会成功，直接进死信；其余失败重投
func decide(err error) action {
	switch {
	case err == nil, errors.IsSkipMessageError(err):
		return actionAck
	case errors.IsValidation(err):
		return actionReject
	default:
		return actionRequeue
	}
}

// Consume 阻塞直到 ctx 结束或 channel 被关闭
func Consume(ctx context.Context, opts ConsumeOptions) error {
	ch, err := channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if opts.PrefetchCount > 0 {
		if err := ch.Qos(opts.PrefetchCount, 0, false); err != nil {
			return fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	msgs, err := ch.ConsumeWithContext(ctx,
		opts.Queue,
		opts.ConsumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	logger.Logger.Info("Started consuming messages",
		zap.String("queue", opts.Queue),
		zap.String("consumer_tag", opts.ConsumerTag),
		zap.Int("prefetch_count", opts.PrefetchCount),
	)

	tracer := otel.Tracer("carefollow.mq")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("consumer channel for %s closed", opts.Queue)
			}
			handle(ctx, tracer, opts, msg)
		}
	}
}

func handle(ctx context.Context, tracer trace.Tracer, opts ConsumeOptions, msg amqp.Delivery) {
	ctx = otel.GetTextMapPropagator().Extract(ctx, HeaderCarrier(msg.Headers))
	ctx, span := tracer.Start(ctx, opts.Queue+" process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.message.id", msg.MessageId),
			attribute.String("messaging.rabbitmq.queue", opts.Queue),
		),
	)
	defer span.End()

	err := opts.Handler(ctx, msg.Body)
	act := decide(err)
	metrics.RecordMessage(ctx, opts.Queue, act.String())

	var ackErr error
	switch act {
	case actionAck:
		ackErr = msg.Ack(false)
	case actionReject:
		span.SetStatus(codes.Error, err.Error())
		logger.Logger.Warn("Rejected invalid message",
			zap.String("queue", opts.Queue),
			zap.String("message_id", msg.MessageId),
			zap.Error(err),
		)
		ackErr = msg.Nack(false, false)
	default:
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		logger.Logger.Error("Failed to process message, requeueing",
			zap.String("queue", opts.Queue),
			zap.String("message_id", msg.MessageId),
			zap.Error(err),
		)
		ackErr = msg.Nack(false, true)
	}

	if ackErr != nil {
		logger.Logger.Warn("Failed to acknowledge message",
			zap.String("queue", opts.Queue),
			zap.String("message_id", msg.MessageId),
			zap.Error(ackErr),
		)
	}
}
