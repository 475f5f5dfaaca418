package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Forge/internal/catalog"
	"github.com/shaiso/Forge/internal/domain"
)

// Runtime — транспорт до изолированной среды выполнения.
//
// Реализация поверх RabbitMQ живёт в internal/mq; в тестах используется
// in-process заглушка. Execute блокируется до результата, отмены ctx
// или истечения дедлайна.
type Runtime interface {
	Execute(ctx context.Context, task *domain.TaskInstance, def domain.TaskDefinition) (map[string]any, error)
}

// Dispatcher выполняет один экземпляр задачи согласно её определению:
// LIGHTWEIGHT — in-process, ISOLATED — через Runtime.
//
// Dispatcher не трогает состояние задачи и не знает про retry: он возвращает
// outputs либо классифицированную ошибку, решения принимает оркестратор.
type Dispatcher struct {
	catalog *catalog.Catalog
	runtime Runtime
	logger  *slog.Logger
}

// New создаёт Dispatcher. runtime может быть nil — тогда ISOLATED задачи
// завершаются с IsolationFailure.
func New(cat *catalog.Catalog, runtime Runtime, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{catalog: cat, runtime: runtime, logger: logger}
}

// Execute выполняет задачу и возвращает её outputs либо классифицированную
// ошибку. Вход валидируется до запуска, выход — после; дедлайн берётся
// из TimeoutSec определения.
func (d *Dispatcher) Execute(ctx context.Context, task *domain.TaskInstance) (map[string]any, *domain.ExecError) {
	def, err := d.catalog.Lookup(task.Kind)
	if err != nil {
		return nil, &domain.ExecError{
			Category: domain.ErrTaskLogic,
			Message:  fmt.Sprintf("unknown task kind %q", task.Kind),
		}
	}

	if result := catalog.ValidateInputs(def, task.Inputs); !result.OK() {
		return nil, &domain.ExecError{
			Category: domain.ErrTaskLogic,
			Message:  fmt.Sprintf("input validation: %v", result.Err()),
		}
	}

	if def.TimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(def.TimeoutSec)*time.Second)
		defer cancel()
	}

	var outputs map[string]any
	var execErr *domain.ExecError

	switch def.Category {
	case domain.CategoryIsolated:
		outputs, execErr = d.executeIsolated(ctx, task, def)
	default:
		outputs, execErr = d.executeInProcess(ctx, task, def)
	}
	if execErr != nil {
		return nil, execErr
	}

	if result := catalog.ValidateOutputs(def, outputs); !result.OK() {
		return nil, &domain.ExecError{
			Category: domain.ErrTaskLogic,
			Message:  fmt.Sprintf("output validation: %v", result.Err()),
		}
	}
	return outputs, nil
}

// ExecuteLocal выполняет задачу in-process независимо от её категории.
// Используется runner'ом: для него ISOLATED задача — локальная работа.
func (d *Dispatcher) ExecuteLocal(ctx context.Context, task *domain.TaskInstance) (map[string]any, *domain.ExecError) {
	def, err := d.catalog.Lookup(task.Kind)
	if err != nil {
		return nil, &domain.ExecError{
			Category: domain.ErrTaskLogic,
			Message:  fmt.Sprintf("unknown task kind %q", task.Kind),
		}
	}

	if result := catalog.ValidateInputs(def, task.Inputs); !result.OK() {
		return nil, &domain.ExecError{
			Category: domain.ErrTaskLogic,
			Message:  fmt.Sprintf("input validation: %v", result.Err()),
		}
	}

	if def.TimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(def.TimeoutSec)*time.Second)
		defer cancel()
	}

	outputs, execErr := d.executeInProcess(ctx, task, def)
	if execErr != nil {
		return nil, execErr
	}

	if result := catalog.ValidateOutputs(def, outputs); !result.OK() {
		return nil, &domain.ExecError{
			Category: domain.ErrTaskLogic,
			Message:  fmt.Sprintf("output validation: %v", result.Err()),
		}
	}
	return outputs, nil
}

type execResult struct {
	outputs map[string]any
	err     error
}

// executeInProcess выполняет LIGHTWEIGHT задачу в текущем процессе.
// Паника обработчика превращается в TaskLogicError, дедлайн соблюдается
// даже если обработчик игнорирует ctx.
func (d *Dispatcher) executeInProcess(ctx context.Context, task *domain.TaskInstance, def domain.TaskDefinition) (map[string]any, *domain.ExecError) {
	if def.Handler == nil {
		return nil, &domain.ExecError{
			Category: domain.ErrTaskLogic,
			Message:  fmt.Sprintf("task kind %q has no handler", task.Kind),
		}
	}

	resultCh := make(chan execResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- execResult{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		outputs, err := def.Handler.Run(ctx, task.Inputs)
		resultCh <- execResult{outputs: outputs, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, classify(res.err, domain.ErrTaskLogic)
		}
		return res.outputs, nil
	case <-ctx.Done():
		// Обработчик, игнорирующий ctx, доработает в фоне; результат отбрасывается
		return nil, timeoutError(ctx, task)
	}
}

// executeIsolated передаёт ISOLATED задачу в изолированную среду через Runtime.
func (d *Dispatcher) executeIsolated(ctx context.Context, task *domain.TaskInstance, def domain.TaskDefinition) (map[string]any, *domain.ExecError) {
	if d.runtime == nil {
		return nil, &domain.ExecError{
			Category: domain.ErrIsolation,
			Message:  "no isolated runtime configured",
		}
	}

	outputs, err := d.runtime.Execute(ctx, task, def)
	if err != nil {
		if ctx.Err() != nil {
			return nil, timeoutError(ctx, task)
		}
		return nil, classify(err, domain.ErrIsolation)
	}
	return outputs, nil
}

// classify превращает error в ExecError. Обработчик может вернуть
// *domain.ExecError с собственной категорией — она сохраняется; прочие
// ошибки получают категорию по умолчанию.
func classify(err error, fallback domain.ErrorCategory) *domain.ExecError {
	var execErr *domain.ExecError
	if errors.As(err, &execErr) {
		return execErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.ExecError{Category: domain.ErrTimeout, Message: err.Error()}
	}
	return &domain.ExecError{Category: fallback, Message: err.Error()}
}

func timeoutError(ctx context.Context, task *domain.TaskInstance) *domain.ExecError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &domain.ExecError{
			Category: domain.ErrTimeout,
			Message:  fmt.Sprintf("task %q exceeded deadline", task.Kind),
		}
	}
	// Отмена снаружи (cancel pipeline, shutdown) — не таймаут задачи
	return &domain.ExecError{
		Category: domain.ErrInterrupted,
		Message:  fmt.Sprintf("task %q interrupted: %v", task.Kind, ctx.Err()),
	}
}
