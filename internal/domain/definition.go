package domain

import "context"

// Category — категория исполнения задачи.
type Category string

const (
	// CategoryLightweight — лёгкая задача, выполняется синхронно
	// внутри процесса оркестратора.
	CategoryLightweight Category = "LIGHTWEIGHT"

	// CategoryIsolated — тяжёлая задача, выполняется во внешней
	// изолированной среде (отдельный процесс/контейнер).
	CategoryIsolated Category = "ISOLATED"
)

// Executable — исполняемая логика задачи.
//
// Реализуется каждым видом задачи. Для LIGHTWEIGHT вызывается напрямую
// диспетчером, для ISOLATED — внутри runner-процесса.
type Executable interface {
	Run(ctx context.Context, inputs map[string]any) (map[string]any, error)
}

// ExecutableFunc — адаптер функции к интерфейсу Executable.
type ExecutableFunc func(ctx context.Context, inputs map[string]any) (map[string]any, error)

// Run реализует Executable.
func (f ExecutableFunc) Run(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	return f(ctx, inputs)
}

// TaskDefinition — неизменяемое определение вида задачи.
//
// Регистрируется в каталоге при старте процесса явным вызовом Register —
// без side effects на импорт. Kind — уникальный ключ.
type TaskDefinition struct {
	// Kind — уникальное имя вида задачи (например, "load_dataset", "finetune").
	Kind string `json:"kind"`

	// Description — описание назначения задачи.
	Description string `json:"description,omitempty"`

	// Category — LIGHTWEIGHT или ISOLATED.
	Category Category `json:"category"`

	// InputSchema — схема входных параметров.
	InputSchema Schema `json:"input_schema,omitempty"`

	// OutputSchema — схема выходных значений. По ней валидируются
	// input_mappings зависимых узлов.
	OutputSchema Schema `json:"output_schema,omitempty"`

	// Retry — политика повторных попыток по умолчанию.
	Retry RetryPolicy `json:"retry,omitempty"`

	// Idempotent — задачу безопасно перезапускать после прерывания.
	// Влияет на crash recovery: RUNNING → RETRY_PENDING вместо FAILED.
	Idempotent bool `json:"idempotent,omitempty"`

	// TimeoutSec — таймаут одного выполнения в секундах. 0 — без таймаута.
	TimeoutSec int `json:"timeout_sec,omitempty"`

	// Handler — исполняемая логика. Не сериализуется; для ISOLATED задач
	// присутствует только в процессе runner'а.
	Handler Executable `json:"-"`
}

// RetryPolicy — политика повторных попыток.
type RetryPolicy struct {
	// MaxAttempts — максимальное количество попыток (включая первую).
	// 0 или 1 — без retry.
	MaxAttempts int `json:"max_attempts,omitempty"`

	// Backoff — стратегия задержки: "fixed", "exponential".
	Backoff string `json:"backoff,omitempty"`

	// InitialDelayMs — начальная задержка в миллисекундах.
	InitialDelayMs int `json:"initial_delay_ms,omitempty"`

	// MaxDelayMs — максимальная задержка в миллисекундах.
	MaxDelayMs int `json:"max_delay_ms,omitempty"`
}

// AllowsRetry возвращает true, если после attempt попыток возможна ещё одна.
func (p RetryPolicy) AllowsRetry(attempt int) bool {
	return p.MaxAttempts > 1 && attempt < p.MaxAttempts
}
