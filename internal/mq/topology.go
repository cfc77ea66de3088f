package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

// Exchanges.
const (
	ExchangeEvents Exchange = "conveyor.events"
	ExchangeTasks  Exchange = "conveyor.tasks"
	ExchangeDLQ    Exchange = "conveyor.dlq"
)

// Queues.
const (
	QueueEventsInbound  Queue = "events.inbound"
	QueueTasksCompleted Queue = "tasks.completed"
	QueueDLQEvents      Queue = "dlq.events"
)

// Routing keys.
const (
	RoutingKeyInbound   RoutingKey = "inbound"
	RoutingKeyCompleted RoutingKey = "completed"
	RoutingKeyDLQEvents RoutingKey = "events"
)

// SetupTopology объявляет обменники, очереди и привязки.
// Идемпотентна: повторный вызов на существующей топологии безопасен.
func SetupTopology(conn *Connection) error {
	return conn.WithChannel(func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

func declareExchanges(ch *amqp.Channel) error {
	for _, name := range []Exchange{ExchangeEvents, ExchangeTasks, ExchangeDLQ} {
		err := ch.ExchangeDeclare(string(name), "direct", true, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}
	return nil
}

func declareQueues(ch *amqp.Channel) error {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQEvents),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// events.inbound — с DLQ: непригодные события не должны
		// крутиться в очереди вечно.
		{QueueEventsInbound, dlqArgs},

		// tasks.completed — уведомления для внешних потребителей.
		{QueueTasksCompleted, nil},

		{QueueDLQEvents, nil},
	}

	for _, q := range queues {
		if _, err := ch.QueueDeclare(string(q.name), true, false, false, false, q.args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueEventsInbound, RoutingKeyInbound, ExchangeEvents},
		{QueueTasksCompleted, RoutingKeyCompleted, ExchangeTasks},
		{QueueDLQEvents, RoutingKeyDLQEvents, ExchangeDLQ},
	}

	for _, b := range bindings {
		if err := ch.QueueBind(string(b.queue), string(b.routingKey), string(b.exchange), false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}
