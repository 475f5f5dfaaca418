package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskInstance — экземпляр выполнения задачи (один узел pipeline).
//
// Создаётся оркестратором при приёме pipeline. State Store — единственный
// владелец персистентной записи; оркестратор держит рабочую копию в памяти
// и записывает каждый переход через Store.
//
// Инварианты:
//   - Outputs заполнены ⟺ State = COMPLETED
//   - Error заполнен ⟺ State = FAILED
type TaskInstance struct {
	// ID — уникальный идентификатор экземпляра.
	ID uuid.UUID `json:"id"`

	// Kind — вид задачи (ссылка на TaskDefinition в каталоге).
	Kind string `json:"kind"`

	// PipelineID — владеющий pipeline. uuid.Nil для standalone задач,
	// созданных напрямую через Store (API всегда оборачивает их
	// в одноузловой pipeline).
	PipelineID uuid.UUID `json:"pipeline_id"`

	// NodeID — идентификатор узла внутри графа pipeline.
	NodeID string `json:"node_id"`

	// Attempt — номер попытки (начиная с 1, увеличивается при retry).
	Attempt int `json:"attempt"`

	// State — текущее состояние жизненного цикла.
	State TaskState `json:"state"`

	// Inputs — разрешённые входные значения (статические + global +
	// подтянутые из outputs upstream-узлов).
	Inputs map[string]any `json:"inputs,omitempty"`

	// Outputs — выходные значения. Заполняются при COMPLETED.
	Outputs map[string]any `json:"outputs,omitempty"`

	// Error — запись об ошибке. Заполняется при FAILED.
	Error *ExecError `json:"error,omitempty"`

	// NotBefore — для RETRY_PENDING: раньше этого времени задача
	// не попадает в ready set (exponential backoff).
	NotBefore *time.Time `json:"not_before,omitempty"`

	// CreatedAt — время создания экземпляра.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt — время первого перехода в RUNNING.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время перехода в терминальное состояние.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если задача ещё не завершена.
func (t *TaskInstance) Duration() time.Duration {
	if t.StartedAt == nil || t.FinishedAt == nil {
		return 0
	}
	return t.FinishedAt.Sub(*t.StartedAt)
}

// IsFinished возвращает true, если задача в терминальном состоянии.
func (t *TaskInstance) IsFinished() bool {
	return t.State.IsTerminal()
}

// MarkRunning переводит задачу в RUNNING и увеличивает номер попытки.
func (t *TaskInstance) MarkRunning() {
	now := time.Now()
	t.State = TaskStateRunning
	t.Attempt++
	t.NotBefore = nil
	if t.StartedAt == nil {
		t.StartedAt = &now
	}
}

// MarkCompleted переводит задачу в COMPLETED с выходными значениями.
func (t *TaskInstance) MarkCompleted(outputs map[string]any) {
	now := time.Now()
	t.State = TaskStateCompleted
	t.FinishedAt = &now
	t.Outputs = outputs
	t.Error = nil
}

// MarkFailed переводит задачу в FAILED с записью об ошибке.
func (t *TaskInstance) MarkFailed(execErr *ExecError) {
	now := time.Now()
	t.State = TaskStateFailed
	t.FinishedAt = &now
	t.Outputs = nil
	t.Error = execErr
}

// MarkRetryPending переводит задачу в RETRY_PENDING с временем,
// раньше которого повторная попытка не допускается.
func (t *TaskInstance) MarkRetryPending(notBefore time.Time) {
	t.State = TaskStateRetryPending
	t.NotBefore = &notBefore
	t.FinishedAt = nil
	t.Outputs = nil
}

// MarkCancelled переводит задачу в CANCELLED.
func (t *TaskInstance) MarkCancelled() {
	now := time.Now()
	t.State = TaskStateCancelled
	t.FinishedAt = &now
}
