package catalog

import (
	"fmt"
	"sync"

	"github.com/shaiso/Forge/internal/domain"
)

// Catalog — реестр определений задач.
//
// Заполняется один раз при старте процесса явными вызовами Register,
// после этого только читается. Teardown не требуется.
// Отдельные экземпляры каталога передаются в оркестратор при создании —
// без process-wide синглтона, чтобы тесты могли поднимать независимые
// экземпляры оркестрации.
type Catalog struct {
	mu   sync.RWMutex
	defs map[string]domain.TaskDefinition

	// order — виды в порядке регистрации, для стабильного List.
	order []string
}

// New создаёт пустой каталог.
func New() *Catalog {
	return &Catalog{defs: make(map[string]domain.TaskDefinition)}
}

// Register добавляет определение задачи.
// Возвращает ErrDuplicateKind, если вид уже зарегистрирован.
func (c *Catalog) Register(def domain.TaskDefinition) error {
	if def.Kind == "" {
		return fmt.Errorf("%w: empty kind name", ErrInvalidDefinition)
	}
	if def.Category != domain.CategoryLightweight && def.Category != domain.CategoryIsolated {
		return fmt.Errorf("%w: kind %s has unknown category %q", ErrInvalidDefinition, def.Kind, def.Category)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.defs[def.Kind]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateKind, def.Kind)
	}
	c.defs[def.Kind] = def
	c.order = append(c.order, def.Kind)
	return nil
}

// Lookup возвращает определение по имени вида.
// Возвращает ErrUnknownKind, если вид не зарегистрирован.
func (c *Catalog) Lookup(kind string) (domain.TaskDefinition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	def, ok := c.defs[kind]
	if !ok {
		return domain.TaskDefinition{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return def, nil
}

// Has проверяет, зарегистрирован ли вид.
func (c *Catalog) Has(kind string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.defs[kind]
	return ok
}

// List возвращает итератор по определениям в порядке регистрации.
// Последовательность конечная и перезапускаемая; фильтры опциональны.
func (c *Catalog) List(filters ...ListFilter) func(yield func(domain.TaskDefinition) bool) {
	return func(yield func(domain.TaskDefinition) bool) {
		c.mu.RLock()
		kinds := make([]string, len(c.order))
		copy(kinds, c.order)
		c.mu.RUnlock()

	next:
		for _, kind := range kinds {
			c.mu.RLock()
			def, ok := c.defs[kind]
			c.mu.RUnlock()
			if !ok {
				continue
			}
			for _, f := range filters {
				if !f(def) {
					continue next
				}
			}
			if !yield(def) {
				return
			}
		}
	}
}

// Definitions возвращает срез определений в порядке регистрации.
func (c *Catalog) Definitions(filters ...ListFilter) []domain.TaskDefinition {
	var defs []domain.TaskDefinition
	c.List(filters...)(func(def domain.TaskDefinition) bool {
		defs = append(defs, def)
		return true
	})
	return defs
}

// Count возвращает количество зарегистрированных видов.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.defs)
}

// ListFilter — предикат фильтрации для List.
type ListFilter func(domain.TaskDefinition) bool

// ByCategory отбирает определения заданной категории.
func ByCategory(cat domain.Category) ListFilter {
	return func(def domain.TaskDefinition) bool {
		return def.Category == cat
	}
}
