package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/conveyor/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeEventInbound  MessageType = "event.inbound"
	MessageTypeTaskCompleted MessageType = "task.completed"
)

// Message — конверт сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// EventInboundPayload — событие от внешнего producer'а.
type EventInboundPayload struct {
	Topic   string            `json:"topic"`
	Aspects map[string]string `json:"aspects,omitempty"`
}

// TaskCompletedPayload — уведомление о финальном статусе задачи.
type TaskCompletedPayload struct {
	TaskID     uuid.UUID  `json:"task_id"`
	Tag        string     `json:"tag"`
	Status     string     `json:"status"` // completed или failed
	Occurrence time.Time  `json:"occurrence"`
	ParentID   *uuid.UUID `json:"parent_id,omitempty"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{conn: conn, logger: logger}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			string(routingKey),
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishTaskCompleted публикует уведомление о задаче, достигшей
// финального статуса. Потребители: внешние системы.
func (p *Publisher) PublishTaskCompleted(ctx context.Context, task *domain.ScheduledTask) error {
	msg := &Message{
		ID:   uuid.New().String(),
		Type: MessageTypeTaskCompleted,
		Payload: TaskCompletedPayload{
			TaskID:     task.ID,
			Tag:        task.Tag,
			Status:     string(task.Status),
			Occurrence: task.Occurrence,
			ParentID:   task.ParentID,
		},
		Timestamp: time.Now(),
	}
	return p.Publish(ctx, ExchangeTasks, RoutingKeyCompleted, msg)
}
