package domain

// FieldType — тип поля схемы.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldObject  FieldType = "object"

	// FieldArtifact — ссылка на артефакт в content store.
	// Ядро проверяет только корректность идентификатора,
	// байты артефакта не интерпретируются.
	FieldArtifact FieldType = "artifact"
)

// FieldDef — определение одного поля схемы input/output.
type FieldDef struct {
	// Type — тип поля.
	Type FieldType `json:"type"`

	// Required — обязательное ли поле.
	Required bool `json:"required,omitempty"`

	// Description — описание поля.
	Description string `json:"description,omitempty"`
}

// Schema — схема входных или выходных значений задачи.
// Ключ — имя поля.
type Schema map[string]FieldDef

// Has проверяет, объявлено ли поле в схеме.
func (s Schema) Has(field string) bool {
	_, ok := s[field]
	return ok
}

// RequiredFields возвращает имена обязательных полей.
func (s Schema) RequiredFields() []string {
	var fields []string
	for name, def := range s {
		if def.Required {
			fields = append(fields, name)
		}
	}
	return fields
}
