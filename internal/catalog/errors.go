package catalog

import "errors"

// Ошибки каталога.
var (
	// ErrDuplicateKind — вид задачи уже зарегистрирован.
	ErrDuplicateKind = errors.New("task kind already registered")

	// ErrUnknownKind — вид задачи не найден в каталоге.
	ErrUnknownKind = errors.New("unknown task kind")

	// ErrInvalidDefinition — определение задачи некорректно.
	ErrInvalidDefinition = errors.New("invalid task definition")

	// ErrSchemaViolation — значения не соответствуют схеме.
	ErrSchemaViolation = errors.New("schema violation")
)
