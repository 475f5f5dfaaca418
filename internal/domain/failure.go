package domain

import "time"

// ErrorCategory — категория ошибки выполнения узла.
type ErrorCategory string

const (
	// ErrTaskLogic — ошибка логики самой задачи (паника или error из Run).
	ErrTaskLogic ErrorCategory = "TaskLogicError"

	// ErrIsolation — сбой изолированной среды: недоступность runtime,
	// исчерпание ресурсов, падение изолированного процесса.
	ErrIsolation ErrorCategory = "IsolationFailure"

	// ErrTimeout — выполнение превысило таймаут из определения задачи.
	ErrTimeout ErrorCategory = "Timeout"

	// ErrMissingUpstreamOutput — input_mapping ссылается на поле,
	// отсутствующее в фактических outputs upstream-узла.
	// Обнаруживается только после выполнения upstream.
	ErrMissingUpstreamOutput ErrorCategory = "MissingUpstreamOutput"

	// ErrUpstreamFailed — узел не выполнялся, потому что упала его
	// транзитивная зависимость.
	ErrUpstreamFailed ErrorCategory = "UpstreamFailed"

	// ErrInterrupted — выполнение прервано рестартом процесса.
	ErrInterrupted ErrorCategory = "InterruptedExecution"
)

// Retryable возвращает true, если категория допускает автоматический retry.
// Ошибки валидации и цепочек зависимостей не повторяются.
func (c ErrorCategory) Retryable() bool {
	switch c {
	case ErrTaskLogic, ErrTimeout:
		return true
	default:
		return false
	}
}

// ExecError — запись об ошибке выполнения узла.
// Устанавливается тогда и только тогда, когда задача в состоянии FAILED.
type ExecError struct {
	// Category — категория ошибки.
	Category ErrorCategory `json:"category"`

	// Message — текст ошибки.
	Message string `json:"message"`

	// Hint — подсказка из Failure Learning Store, если найдена.
	Hint string `json:"hint,omitempty"`
}

// Error реализует интерфейс error.
func (e *ExecError) Error() string {
	return string(e.Category) + ": " + e.Message
}

// FailureSignature — нормализованный ключ для индекса заметок об исправлениях.
type FailureSignature struct {
	// Kind — вид задачи, в которой произошла ошибка.
	Kind string `json:"kind"`

	// Category — категория ошибки.
	Category ErrorCategory `json:"category"`
}

// Key возвращает строковый ключ сигнатуры для хранения.
func (s FailureSignature) Key() string {
	return s.Kind + ":" + string(s.Category)
}

// RemediationNote — заметка об исправлении для сигнатуры ошибки.
// История append-only, last-write-wins при чтении.
type RemediationNote struct {
	// Signature — сигнатура, к которой относится заметка.
	Signature FailureSignature `json:"signature"`

	// Note — текст заметки (что помогло в прошлый раз).
	Note string `json:"note"`

	// Occurrences — сколько раз наблюдалась сигнатура на момент записи.
	Occurrences int `json:"occurrences,omitempty"`

	// CreatedAt — время записи.
	CreatedAt time.Time `json:"created_at"`
}
