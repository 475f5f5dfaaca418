package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/Forge/internal/domain"
)

// Runtime — транспорт до изолированной среды выполнения поверх RabbitMQ.
//
// Execute публикует задачу в tasks.isolated и блокируется до появления
// результата в tasks.results. Результаты раздаются по task_id: один
// consumer обслуживает все одновременно ожидающие задачи оркестратора.
type Runtime struct {
	conn      *Connection
	publisher *Publisher
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[uuid.UUID]chan TaskResultPayload

	consumer *Consumer
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// NewRuntime создаёт Runtime поверх соединения.
func NewRuntime(conn *Connection, logger *slog.Logger) *Runtime {
	return &Runtime{
		conn:      conn,
		publisher: NewPublisher(conn, logger),
		logger:    logger,
		pending:   make(map[uuid.UUID]chan TaskResultPayload),
	}
}

// Start запускает consumer результатов. Вызывается один раз при старте
// оркестратора; без него Execute никогда не дождётся ответа.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.consumer = NewConsumer(r.conn, r.logger, ConsumerConfig{
		Queue:    string(QueueTaskResults),
		Handler:  r.handleResult,
		Prefetch: 10,
	})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("task result consumer error", "error", err)
		}
	}()
	return nil
}

// Stop останавливает consumer и освобождает ожидающие Execute.
func (r *Runtime) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.consumer != nil {
		r.consumer.Stop()
	}
	r.wg.Wait()

	r.mu.Lock()
	for id, ch := range r.pending {
		close(ch)
		delete(r.pending, id)
	}
	r.mu.Unlock()
}

// Execute отправляет изолированную задачу runner'у и ждёт результата.
func (r *Runtime) Execute(ctx context.Context, task *domain.TaskInstance, def domain.TaskDefinition) (map[string]any, error) {
	resultCh := r.register(task.ID)
	defer r.unregister(task.ID)

	payload := TaskDispatchPayload{
		TaskID:     task.ID,
		PipelineID: task.PipelineID,
		NodeID:     task.NodeID,
		Kind:       task.Kind,
		Attempt:    task.Attempt,
		Inputs:     task.Inputs,
		TimeoutSec: def.TimeoutSec,
	}
	if err := r.publisher.PublishTaskDispatch(ctx, payload); err != nil {
		return nil, fmt.Errorf("dispatch task: %w", err)
	}

	select {
	case result, ok := <-resultCh:
		if !ok {
			return nil, fmt.Errorf("runtime stopped while waiting for task %s", task.ID)
		}
		if result.ErrorCategory != "" {
			return nil, &domain.ExecError{
				Category: domain.ErrorCategory(result.ErrorCategory),
				Message:  result.ErrorMessage,
			}
		}
		return result.Outputs, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// handleResult раздаёт результат ожидающему Execute.
func (r *Runtime) handleResult(ctx context.Context, delivery *Delivery) error {
	payload, err := ParsePayload[TaskResultPayload](&delivery.Message)
	if err != nil {
		r.logger.Error("failed to parse task.result payload", "error", err)
		return err
	}

	r.mu.Lock()
	ch, waiting := r.pending[payload.TaskID]
	r.mu.Unlock()

	if !waiting {
		// Результат для задачи, которую уже никто не ждёт (рестарт
		// оркестратора, истёкший дедлайн) — задача будет повторена
		// по решению recovery-скана
		r.logger.Debug("dropping unclaimed task result",
			"task_id", payload.TaskID,
			"pipeline_id", payload.PipelineID,
		)
		return nil
	}

	select {
	case ch <- payload:
	default:
	}
	return nil
}

func (r *Runtime) register(taskID uuid.UUID) chan TaskResultPayload {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan TaskResultPayload, 1)
	r.pending[taskID] = ch
	return ch
}

func (r *Runtime) unregister(taskID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, taskID)
}
