package domain

// TaskState — состояние жизненного цикла экземпляра задачи.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → COMPLETED
//	                  ↘ FAILED
//	        RUNNING → RETRY_PENDING → RUNNING (при retry)
//	(любое нетерминальное) → CANCELLED
type TaskState string

const (
	// TaskStatePending — задача создана, зависимости ещё не выполнены
	// или задача ожидает диспетчеризации.
	TaskStatePending TaskState = "PENDING"

	// TaskStateRunning — задача выполняется (in-process или в изолированной среде).
	TaskStateRunning TaskState = "RUNNING"

	// TaskStateRetryPending — задача упала или была прервана рестартом,
	// ожидает backoff перед повторной попыткой.
	TaskStateRetryPending TaskState = "RETRY_PENDING"

	// TaskStateCompleted — задача успешно завершена, outputs заполнены.
	TaskStateCompleted TaskState = "COMPLETED"

	// TaskStateFailed — задача завершилась с ошибкой после всех retry.
	TaskStateFailed TaskState = "FAILED"

	// TaskStateCancelled — задача отменена пользователем.
	TaskStateCancelled TaskState = "CANCELLED"
)

// IsTerminal возвращает true, если состояние финальное.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCancelled:
		return true
	default:
		return false
	}
}

// Valid возвращает true для известного состояния задачи.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStatePending, TaskStateRunning, TaskStateRetryPending,
		TaskStateCompleted, TaskStateFailed, TaskStateCancelled:
		return true
	default:
		return false
	}
}

// PipelineState — агрегатное состояние pipeline, производное от состояний узлов.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → COMPLETED
//	                  ↘ FAILED
//	          (или) → CANCELLED (из PENDING или RUNNING)
type PipelineState string

const (
	// PipelineStatePending — pipeline принят, но ещё не обрабатывается.
	PipelineStatePending PipelineState = "PENDING"

	// PipelineStateRunning — хотя бы один узел выполняется или ожидает готовности.
	PipelineStateRunning PipelineState = "RUNNING"

	// PipelineStateCompleted — все узлы COMPLETED.
	PipelineStateCompleted PipelineState = "COMPLETED"

	// PipelineStateFailed — хотя бы один узел FAILED и новых готовых узлов нет.
	PipelineStateFailed PipelineState = "FAILED"

	// PipelineStateCancelled — pipeline отменён пользователем.
	PipelineStateCancelled PipelineState = "CANCELLED"
)

// IsTerminal возвращает true, если состояние финальное.
func (s PipelineState) IsTerminal() bool {
	switch s {
	case PipelineStateCompleted, PipelineStateFailed, PipelineStateCancelled:
		return true
	default:
		return false
	}
}

// Valid возвращает true для известного состояния pipeline.
func (s PipelineState) Valid() bool {
	switch s {
	case PipelineStatePending, PipelineStateRunning,
		PipelineStateCompleted, PipelineStateFailed, PipelineStateCancelled:
		return true
	default:
		return false
	}
}
