package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/shaiso/Forge/internal/dispatch"
	"github.com/shaiso/Forge/internal/domain"
	"github.com/shaiso/Forge/internal/mq"
)

const defaultPrefetch = 1

// Runner выполняет ISOLATED задачи в отдельном процессе.
//
// Runner — stateless компонент: получает задачи из очереди
// tasks.isolated, выполняет обработчик из локального каталога
// и публикует результат в tasks.results. Персистентным состоянием
// владеет оркестратор; runner'у доступны только данные из сообщения.
//
// Runners масштабируются горизонтально — несколько экземпляров
// потребляют из одной очереди.
type Runner struct {
	dispatcher *dispatch.Dispatcher
	publisher  *mq.Publisher
	conn       *mq.Connection
	consumer   *mq.Consumer

	prefetch int

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Runner.
type Config struct {
	Dispatcher *dispatch.Dispatcher
	Publisher  *mq.Publisher
	Conn       *mq.Connection

	// Prefetch — сколько задач runner берёт из очереди одновременно.
	// ISOLATED задачи тяжёлые, поэтому по умолчанию 1.
	Prefetch int

	Logger *slog.Logger
}

// New создаёт новый Runner.
func New(cfg Config) *Runner {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		dispatcher: cfg.Dispatcher,
		publisher:  cfg.Publisher,
		conn:       cfg.Conn,
		prefetch:   prefetch,
		logger:     logger.With("component", "runner"),
	}
}

// Start запускает consumer задач.
func (r *Runner) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancelFunc = cancel

	r.consumer = mq.NewConsumer(r.conn, r.logger, mq.ConsumerConfig{
		Queue:    string(mq.QueueTasksIsolated),
		Handler:  r.handleDispatch,
		Prefetch: r.prefetch,
	})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("task consumer error", "error", err)
		}
	}()

	r.logger.Info("runner started", "prefetch", r.prefetch)
	return nil
}

// Stop останавливает Runner и дожидается завершения текущей задачи.
func (r *Runner) Stop() {
	if r.cancelFunc != nil {
		r.cancelFunc()
	}
	if r.consumer != nil {
		r.consumer.Stop()
	}
	r.wg.Wait()
	r.logger.Info("runner stopped")
}

// handleDispatch выполняет одну задачу из очереди и публикует результат.
//
// Ошибка выполнения — это результат, а не сбой обработки сообщения:
// сообщение ack'ается, исход уезжает в tasks.results. Nack (и DLQ)
// остаётся для случаев, когда результат опубликовать не удалось.
func (r *Runner) handleDispatch(ctx context.Context, msg *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.TaskDispatchPayload](&msg.Message)
	if err != nil {
		return err
	}

	r.logger.Info("task received",
		"task_id", payload.TaskID,
		"kind", payload.Kind,
		"attempt", payload.Attempt,
	)

	task := &domain.TaskInstance{
		ID:         payload.TaskID,
		Kind:       payload.Kind,
		PipelineID: payload.PipelineID,
		NodeID:     payload.NodeID,
		Attempt:    payload.Attempt,
		Inputs:     payload.Inputs,
	}

	outputs, execErr := r.dispatcher.ExecuteLocal(ctx, task)

	result := mq.TaskResultPayload{
		TaskID:     payload.TaskID,
		PipelineID: payload.PipelineID,
		NodeID:     payload.NodeID,
		Kind:       payload.Kind,
		Attempt:    payload.Attempt,
		Outputs:    outputs,
	}
	if execErr != nil {
		result.ErrorCategory = string(execErr.Category)
		result.ErrorMessage = execErr.Message
		r.logger.Error("task failed",
			"task_id", payload.TaskID,
			"kind", payload.Kind,
			"category", execErr.Category,
			"error", execErr.Message,
		)
	} else {
		r.logger.Info("task completed", "task_id", payload.TaskID, "kind", payload.Kind)
	}

	return r.publisher.PublishTaskResult(ctx, result)
}
