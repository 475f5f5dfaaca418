package graph

import "errors"

// Ошибки валидации графа. Все они возвращаются до создания каких-либо
// экземпляров задач и полностью исправимы повторной подачей графа.
var (
	// ErrEmptyGraph — граф не содержит узлов.
	ErrEmptyGraph = errors.New("pipeline graph has no nodes")

	// ErrEmptyNodeID — узел не имеет ID.
	ErrEmptyNodeID = errors.New("node has empty ID")

	// ErrDuplicateNodeID — несколько узлов с одинаковым ID.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrCycleDetected — обнаружен цикл в зависимостях.
	ErrCycleDetected = errors.New("cycle detected in dependency graph")

	// ErrUnknownTaskKind — узел ссылается на незарегистрированный вид задачи.
	ErrUnknownTaskKind = errors.New("node references unknown task kind")

	// ErrDanglingInputMapping — input_mapping ссылается на отсутствующий
	// узел или на поле, не объявленное в output-схеме upstream-задачи.
	ErrDanglingInputMapping = errors.New("dangling input mapping")

	// ErrSelfDependency — узел зависит от самого себя.
	ErrSelfDependency = errors.New("node depends on itself")
)

// ValidationError — ошибка валидации графа с контекстом.
type ValidationError struct {
	NodeID  string // узел, где обнаружена проблема
	Message string // описание
	Err     error  // базовая ошибка (категория)
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

func newValidationError(nodeID, message string, err error) *ValidationError {
	return &ValidationError{NodeID: nodeID, Message: message, Err: err}
}
