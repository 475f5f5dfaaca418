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
	MessageTypePipelineSubmitted MessageType = "pipeline.submitted"
	MessageTypePipelineCancel    MessageType = "pipeline.cancel"
	MessageTypeTaskDispatch      MessageType = "task.dispatch"
	MessageTypeTaskResult        MessageType = "task.result"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
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

// PipelineSubmittedPayload — payload для сообщения о поданном pipeline.
type PipelineSubmittedPayload struct {
	PipelineID uuid.UUID `json:"pipeline_id"`
}

// TaskDispatchPayload — payload для изолированной задачи, отправленной runner'у.
type TaskDispatchPayload struct {
	TaskID     uuid.UUID      `json:"task_id"`
	PipelineID uuid.UUID      `json:"pipeline_id"`
	NodeID     string         `json:"node_id,omitempty"`
	Kind       string         `json:"kind"`
	Attempt    int            `json:"attempt"`
	Inputs     map[string]any `json:"inputs,omitempty"`
	TimeoutSec int            `json:"timeout_sec,omitempty"`
}

// TaskResultPayload — payload результата изолированной задачи.
// ErrorCategory пуст при успехе.
type TaskResultPayload struct {
	TaskID        uuid.UUID      `json:"task_id"`
	PipelineID    uuid.UUID      `json:"pipeline_id"`
	NodeID        string         `json:"node_id,omitempty"`
	Kind          string         `json:"kind"`
	Attempt       int            `json:"attempt"`
	Outputs       map[string]any `json:"outputs,omitempty"`
	ErrorCategory string         `json:"error_category,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
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

// PublishPipelineSubmitted публикует событие о поданном pipeline.
// Потребитель: Orchestrator.
func (p *Publisher) PublishPipelineSubmitted(ctx context.Context, pipelineID uuid.UUID) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypePipelineSubmitted,
		Payload:   PipelineSubmittedPayload{PipelineID: pipelineID},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangePipelines, RoutingKeySubmitted, msg)
}

// PublishPipelineCancel публикует запрос отмены pipeline. Едет в ту же
// очередь, что и заявки: оркестратор различает сообщения по Type.
// Потребитель: Orchestrator.
func (p *Publisher) PublishPipelineCancel(ctx context.Context, pipelineID uuid.UUID) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypePipelineCancel,
		Payload:   PipelineSubmittedPayload{PipelineID: pipelineID},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangePipelines, RoutingKeySubmitted, msg)
}

// PublishTaskDispatch публикует изолированную задачу для runner'а.
// Потребитель: Runner.
func (p *Publisher) PublishTaskDispatch(ctx context.Context, payload TaskDispatchPayload) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeTaskDispatch,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeTasks, RoutingKeyIsolated, msg)
}

// PublishTaskResult публикует результат изолированной задачи.
// Потребитель: Orchestrator.
func (p *Publisher) PublishTaskResult(ctx context.Context, payload TaskResultPayload) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeTaskResult,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeTasks, RoutingKeyResult, msg)
}
