package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrMalformedMessage — сообщение нельзя разобрать как запрос на прогон.
var ErrMalformedMessage = errors.New("malformed message")

// RunHandler обрабатывает запрос на прогон.
//
// nil — сообщение подтверждается. Ошибка, обёрнутая в Permanent, отправляет
// сообщение в DLQ сразу, остальные ошибки дают одну повторную доставку.
type RunHandler func(ctx context.Context, req RunRequestedPayload) error

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent помечает ошибку как неисправимую повтором.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent сообщает, помечена ли ошибка через Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Outcome — чем закончилась обработка доставки.
type Outcome string

const (
	OutcomeAck        Outcome = "ack"
	OutcomeRequeue    Outcome = "requeue"
	OutcomeDeadLetter Outcome = "dead-letter"
)

// Decide выбирает исход доставки по ошибке обработчика.
// Повторно доставленное сообщение с ошибкой больше не возвращается в очередь.
func Decide(err error, redelivered bool) Outcome {
	switch {
	case err == nil:
		return OutcomeAck
	case errors.Is(err, ErrMalformedMessage), IsPermanent(err), redelivered:
		return OutcomeDeadLetter
	default:
		return OutcomeRequeue
	}
}

// DecodeRunRequest разбирает тело сообщения run.requested.
func DecodeRunRequest(body []byte) (Message, RunRequestedPayload, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, RunRequestedPayload{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.Type != MessageTypeRunRequested {
		return msg, RunRequestedPayload{}, fmt.Errorf("%w: unexpected type %q", ErrMalformedMessage, msg.Type)
	}

	req, err := ParsePayload[RunRequestedPayload](&msg)
	if err != nil {
		return msg, req, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if req.PipelineID == uuid.Nil {
		return msg, req, fmt.Errorf("%w: pipeline_id is required", ErrMalformedMessage)
	}
	return msg, req, nil
}

// ConsumerConfig — конфигурация Consumer.
type ConsumerConfig struct {
	// Queue — очередь запросов (default: runs.requested).
	Queue Queue

	Handler RunHandler

	// Prefetch — сколько сообщений брокер отдаёт без подтверждения (default: 1).
	Prefetch int
}

// Consumer читает запросы на прогон из очереди на собственном канале
// и переподписывается после переподключения.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    Queue
	handler  RunHandler
	prefetch int

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewConsumer создаёт Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	queue := cfg.Queue
	if queue == "" {
		queue = QueueRunsRequested
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Consumer{
		conn:     conn,
		logger:   logger.With("queue", string(queue)),
		queue:    queue,
		handler:  cfg.Handler,
		prefetch: prefetch,
	}
}

// Start читает очередь до отмены ctx или Stop. Блокируется.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	for {
		// Ждать нужно переподключения, о котором ещё не было сигнала
		reconnected := c.conn.Reconnected()

		err := c.consumeOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("consumer interrupted, waiting for reconnect", "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.Done():
			return ErrNotConnected
		case <-reconnected:
		}
	}
}

// consumeOnce подписывается на очередь и обрабатывает доставки,
// пока канал жив.
func (c *Consumer) consumeOnce(ctx context.Context) error {
	ch, err := c.conn.OpenChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, string(c.queue), "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.logger.Info("consumer started", "prefetch", c.prefetch)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.handle(ctx, raw)
		}
	}
}

// handle обрабатывает одну доставку и подтверждает её согласно Decide.
func (c *Consumer) handle(ctx context.Context, raw amqp.Delivery) Outcome {
	msg, req, err := DecodeRunRequest(raw.Body)
	if err == nil {
		err = c.handler(ctx, req)
	}

	outcome := Decide(err, raw.Redelivered)
	logger := c.logger.With("message_id", msg.ID, "outcome", string(outcome))
	if req.PipelineID != uuid.Nil {
		logger = logger.With("pipeline_id", req.PipelineID, "request_id", req.RequestID)
	}

	switch outcome {
	case OutcomeAck:
		logger.Debug("run request handled")
		err = raw.Ack(false)
	case OutcomeRequeue:
		logger.Warn("run request failed, will retry", "error", err)
		err = raw.Nack(false, true)
	case OutcomeDeadLetter:
		logger.Error("run request dead-lettered", "error", err, "redelivered", raw.Redelivered)
		err = raw.Nack(false, false)
	}
	if err != nil {
		c.logger.Error("failed to settle delivery", "delivery_tag", raw.DeliveryTag, "error", err)
	}
	return outcome
}

// Stop прерывает Start.
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// ParsePayload декодирует payload сообщения в T.
// После JSON-транспорта payload приходит как map.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}
