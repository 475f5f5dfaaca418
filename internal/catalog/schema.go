package catalog

import (
	"fmt"

	"github.com/shaiso/Forge/internal/domain"
)

// ValidationResult — результат проверки значений по схеме.
type ValidationResult struct {
	// Missing — обязательные поля, отсутствующие во входных значениях.
	Missing []string

	// Invalid — поля с неподходящим типом значения (имя → описание проблемы).
	Invalid map[string]string
}

// OK возвращает true, если проверка прошла без замечаний.
func (r ValidationResult) OK() bool {
	return len(r.Missing) == 0 && len(r.Invalid) == 0
}

// Err возвращает ошибку валидации или nil, если проверка прошла.
func (r ValidationResult) Err() error {
	if r.OK() {
		return nil
	}
	if len(r.Missing) > 0 {
		return fmt.Errorf("%w: missing required fields %v", ErrSchemaViolation, r.Missing)
	}
	for field, problem := range r.Invalid {
		return fmt.Errorf("%w: field %s: %s", ErrSchemaViolation, field, problem)
	}
	return nil
}

// ValidateInputs проверяет входные значения узла по схеме определения.
// Вызывается диспетчером непосредственно перед выполнением, когда
// все upstream-значения уже разрешены.
func ValidateInputs(def domain.TaskDefinition, inputs map[string]any) ValidationResult {
	return validate(def.InputSchema, inputs)
}

// ValidateOutputs проверяет выходные значения задачи по схеме определения.
func ValidateOutputs(def domain.TaskDefinition, outputs map[string]any) ValidationResult {
	return validate(def.OutputSchema, outputs)
}

func validate(schema domain.Schema, values map[string]any) ValidationResult {
	result := ValidationResult{Invalid: make(map[string]string)}

	for name, field := range schema {
		value, present := values[name]
		if !present {
			if field.Required {
				result.Missing = append(result.Missing, name)
			}
			continue
		}
		if problem := checkType(field.Type, value); problem != "" {
			result.Invalid[name] = problem
		}
	}
	return result
}

// checkType проверяет соответствие значения типу поля.
// Возвращает пустую строку, если значение подходит.
func checkType(ft domain.FieldType, value any) string {
	if value == nil {
		return "value is null"
	}

	switch ft {
	case domain.FieldString:
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("expected string, got %T", value)
		}
	case domain.FieldNumber:
		switch value.(type) {
		case int, int32, int64, float32, float64:
		default:
			return fmt.Sprintf("expected number, got %T", value)
		}
	case domain.FieldBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("expected boolean, got %T", value)
		}
	case domain.FieldObject:
		if _, ok := value.(map[string]any); !ok {
			return fmt.Sprintf("expected object, got %T", value)
		}
	case domain.FieldArtifact:
		s, ok := value.(string)
		if !ok {
			return fmt.Sprintf("expected artifact identifier, got %T", value)
		}
		if !ValidArtifactRef(s) {
			return fmt.Sprintf("malformed artifact identifier %q", s)
		}
	}
	return ""
}

// ValidArtifactRef проверяет, что строка — корректный идентификатор артефакта.
// Ядро не интерпретирует содержимое артефакта: проверяется только форма
// идентификатора (непустой, без пробелов и управляющих символов).
func ValidArtifactRef(ref string) bool {
	if ref == "" {
		return false
	}
	for _, r := range ref {
		if r <= ' ' || r == 0x7f {
			return false
		}
	}
	return true
}
