package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeFollowUp   = "followup.events"
	ExchangeDeadLetter = "followup.dead"

	QueueDischarge      = "followup.discharge"
	QueuePatientMessage = "followup.patient_message"
	QueueDeadLetter     = "followup.dead"

	RoutingDischarge      = "discharge"
	RoutingPatientMessage = "patient_message"
)

type binding struct {
	queue      string
	routingKey string
}

var bindings = []binding{
	{queue: QueueDischarge, routingKey: RoutingDischarge},
	{queue: QueuePatientMessage, routingKey: RoutingPatientMessage},
}

// DeclareTopology 声明是幂等的，每个进程启动时都会执行一次
// 被拒绝且不重投的消息进入死信队列，供人工排查
func DeclareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(ExchangeFollowUp, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", ExchangeFollowUp, err)
	}
	if err := ch.ExchangeDeclare(ExchangeDeadLetter, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", ExchangeDeadLetter, err)
	}

	if _, err := ch.QueueDeclare(QueueDeadLetter, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", QueueDeadLetter, err)
	}
	if err := ch.QueueBind(QueueDeadLetter, "", ExchangeDeadLetter, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", QueueDeadLetter, err)
	}

	args := amqp.Table{"x-dead-letter-exchange": ExchangeDeadLetter}
	for _, b := range bindings {
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, args); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", b.queue, err)
		}
		if err := ch.QueueBind(b.queue, b.routingKey, ExchangeFollowUp, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", b.queue, err)
		}
	}
	return nil
}
