package mq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"CareFollow/config"
	"CareFollow/pkg/errors"
	"CareFollow/pkg/logger"
)

var (
	conn     *amqp.Connection
	connOnce sync.Once
	connErr  error
)

// Init 建立连接并声明交换机与队列
func Init(cfg *config.Config) error {
	connOnce.Do(func() {
		conn, connErr = amqp.DialConfig(cfg.GetRabbitMQURL(), amqp.Config{
			Properties: amqp.Table{"connection_name": cfg.ServiceName},
		})
		if connErr != nil {
			connErr = fmt.Errorf("failed to connect to RabbitMQ: %w", connErr)
			return
		}

		ch, err := conn.Channel()
		if err != nil {
			connErr = fmt.Errorf("failed to open channel: %w", err)
			return
		}
		defer ch.Close()

		if err := DeclareTopology(ch); err != nil {
			connErr = err
			return
		}

		logger.Logger.Info("RabbitMQ initialized successfully",
			zap.String("exchange", ExchangeFollowUp),
		)
	})

	return connErr
}

func Connection() *amqp.Connection {
	return conn
}

func channel() (*amqp.Channel, error) {
	if conn == nil || conn.IsClosed() {
		return nil, errors.ErrMQConnectionNil
	}
	return conn.Channel()
}

func Close(ctx context.Context) error {
	if conn == nil || conn.IsClosed() {
		return nil
	}

	closePublisher()

	done := make(chan error, 1)
	go func() {
		done <- conn.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
