package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeRunRequested MessageType = "run.requested"
	MessageTypeNodeStatus   MessageType = "node.status"
	MessageTypeRunFinished  MessageType = "run.finished"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
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

// RunRequestedPayload — запрос на прогон сохранённого пайплайна.
type RunRequestedPayload struct {
	// RequestID станет ID записи прогона.
	RequestID  uuid.UUID `json:"request_id"`
	PipelineID uuid.UUID `json:"pipeline_id"`

	// Trigger — источник запуска: "api", "schedule", ...
	Trigger string `json:"trigger"`

	// IdempotencyKey — повторный запрос с тем же ключом не запускает прогон.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// RunFinishedPayload — итог прогона.
type RunFinishedPayload struct {
	RunID      uuid.UUID  `json:"run_id"`
	PipelineID *uuid.UUID `json:"pipeline_id,omitempty"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	Executed   int        `json:"executed"`
	TotalNodes int        `json:"total_nodes"`
	DurationMs int64      `json:"duration_ms"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Type:         string(msg.Type),
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

// PublishRunRequested публикует запрос на прогон.
// Потребитель: Runner.
func (p *Publisher) PublishRunRequested(ctx context.Context, payload RunRequestedPayload) error {
	if payload.RequestID == uuid.Nil {
		payload.RequestID = uuid.New()
	}
	return p.PublishJSON(ctx, ExchangeRuns, RoutingKeyRequested, MessageTypeRunRequested, payload)
}

// PublishJSON публикует произвольный JSON payload.
func (p *Publisher) PublishJSON(ctx context.Context, exchange Exchange, routingKey RoutingKey, msgType MessageType, payload any) error {
	return p.Publish(ctx, exchange, routingKey, NewMessage(msgType, payload))
}

// NewMessage создаёт сообщение с новым ID.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}
